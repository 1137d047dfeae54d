package server

import (
	"SparkLedger/internal/command"
	"SparkLedger/internal/core"
	"SparkLedger/internal/observability"
	"SparkLedger/internal/query"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
)

// IdempotencyHeader carries the caller's command id on POST requests.
const IdempotencyHeader = "Idempotency-Key"

const maxBodyBytes = 64 * 1024

// Submitter is the engine surface the API writes through.
type Submitter interface {
	Submit(cmd command.Command) (core.Result, error)
}

// API implements the HTTP/JSON routes. Writes become engine commands;
// balance reads go through reader; market, treasury, and integrity views
// come from engine memory.
type API struct {
	engine  Submitter
	reader  query.Reader
	memory  *query.MemoryReader
	metrics *observability.Metrics
	logger  zerolog.Logger

	// Overridable in tests.
	NewID func() string
	Now   func() time.Time
}

func NewAPI(engine Submitter, reader query.Reader, memory *query.MemoryReader, metrics *observability.Metrics, logger zerolog.Logger) *API {
	return &API{
		engine:  engine,
		reader:  reader,
		memory:  memory,
		metrics: metrics,
		logger:  logger,
		NewID:   uuid.NewString,
		Now:     time.Now,
	}
}

// Register binds every route on mux.
func (a *API) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method, pattern, name string
		h                     runtime.HandlerFunc
	}{
		{http.MethodGet, "/v1/accounts/{player}/balance", "balance", a.getBalance},
		{http.MethodPost, "/v1/accounts/{player}/earn", "earn", a.postEarn},
		{http.MethodPost, "/v1/accounts/{player}/spend", "spend", a.postSpend},
		{http.MethodGet, "/v1/accounts/{player}/transactions", "history", a.getHistory},
		{http.MethodPost, "/v1/transfers", "transfer", a.postTransfer},
		{http.MethodGet, "/v1/listings", "listings", a.getListings},
		{http.MethodPost, "/v1/listings", "listing_create", a.postListing},
		{http.MethodPost, "/v1/listings/{id}/buy", "listing_buy", a.postBuyListing},
		{http.MethodPost, "/v1/listings/{id}/cancel", "listing_cancel", a.postCancelListing},
		{http.MethodGet, "/v1/auctions", "auctions", a.getAuctions},
		{http.MethodPost, "/v1/auctions", "auction_create", a.postAuction},
		{http.MethodPost, "/v1/auctions/{id}/bids", "auction_bid", a.postBid},
		{http.MethodPost, "/v1/structures", "structure_build", a.postStructure},
		{http.MethodGet, "/v1/treasury", "treasury", a.getTreasury},
		{http.MethodGet, "/v1/leaderboard", "leaderboard", a.getLeaderboard},
		{http.MethodGet, "/v1/integrity", "integrity", a.getIntegrity},
		{http.MethodGet, "/v1/integrity/chain", "chain", a.getChain},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, a.instrument(r.name, r.h)); err != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) instrument(name string, h runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, params)
		if a.metrics != nil {
			a.metrics.QueryRequests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
			a.metrics.QueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
	}
}

// ---- Writes ----

type earnRequest struct {
	Activity   string   `json:"activity"`
	Complexity *float64 `json:"complexity,omitempty"`
	Rarity     *float64 `json:"rarity,omitempty"`
}

type spendRequest struct {
	Amount int64  `json:"amount"`
	Item   string `json:"item,omitempty"`
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo,omitempty"`
}

type listingRequest struct {
	Seller string `json:"seller"`
	Item   string `json:"item"`
	Price  int64  `json:"price"`
}

type buyRequest struct {
	Buyer string `json:"buyer"`
}

type cancelRequest struct {
	Seller string `json:"seller"`
}

type auctionRequest struct {
	Seller      string `json:"seller"`
	Item        string `json:"item"`
	StartingBid int64  `json:"startingBid"`
	DurationMs  int64  `json:"durationMs,omitempty"`
}

type bidRequest struct {
	Bidder string `json:"bidder"`
	Amount int64  `json:"amount"`
}

type structureRequest struct {
	Owner string `json:"owner"`
	Kind  string `json:"kind"`
}

// CommandResponse is returned by every write.
type CommandResponse struct {
	CommandID string `json:"command_id"`
	Sequence  int64  `json:"sequence,omitempty"`
	StateHash string `json:"state_hash,omitempty"`
	Duplicate bool   `json:"duplicate"`
	Result    any    `json:"result,omitempty"`
}

func (a *API) postEarn(w http.ResponseWriter, r *http.Request, p map[string]string) {
	var req earnRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, &command.Earn{
		Meta:       a.meta(r),
		Player:     p["player"],
		Activity:   req.Activity,
		Complexity: req.Complexity,
		Rarity:     req.Rarity,
	})
}

func (a *API) postSpend(w http.ResponseWriter, r *http.Request, p map[string]string) {
	var req spendRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, &command.Spend{Meta: a.meta(r), Player: p["player"], Amount: req.Amount, Item: req.Item})
}

func (a *API) postTransfer(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req transferRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, &command.Transfer{Meta: a.meta(r), From: req.From, To: req.To, Amount: req.Amount, Memo: req.Memo})
}

func (a *API) postListing(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req listingRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, &command.CreateListing{Meta: a.meta(r), Seller: req.Seller, Item: req.Item, Price: req.Price})
}

func (a *API) postBuyListing(w http.ResponseWriter, r *http.Request, p map[string]string) {
	var req buyRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, &command.BuyListing{Meta: a.meta(r), ListingID: p["id"], Buyer: req.Buyer})
}

func (a *API) postCancelListing(w http.ResponseWriter, r *http.Request, p map[string]string) {
	var req cancelRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, &command.CancelListing{Meta: a.meta(r), ListingID: p["id"], Seller: req.Seller})
}

func (a *API) postAuction(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req auctionRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, &command.CreateAuction{
		Meta:        a.meta(r),
		Seller:      req.Seller,
		Item:        req.Item,
		StartingBid: req.StartingBid,
		DurationMs:  req.DurationMs,
	})
}

func (a *API) postBid(w http.ResponseWriter, r *http.Request, p map[string]string) {
	var req bidRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, &command.PlaceBid{Meta: a.meta(r), AuctionID: p["id"], Bidder: req.Bidder, Amount: req.Amount})
}

func (a *API) postStructure(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req structureRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.submit(w, &command.BuildStructure{Meta: a.meta(r), Owner: req.Owner, StructureKind: req.Kind})
}

// meta uses the Idempotency-Key header when present, else a fresh id.
func (a *API) meta(r *http.Request) command.Meta {
	id := r.Header.Get(IdempotencyHeader)
	if id == "" {
		id = a.NewID()
	}
	return command.Meta{ID: id, Timestamp: a.Now().UnixMilli()}
}

func (a *API) submit(w http.ResponseWriter, cmd command.Command) {
	res, err := a.engine.Submit(cmd)
	if err != nil {
		a.writeError(w, err)
		return
	}

	resp := CommandResponse{CommandID: cmd.CommandID(), Duplicate: res.Duplicate}
	if !res.Duplicate {
		resp.Sequence = res.Sequence
		resp.StateHash = hex.EncodeToString(res.StateHash[:])
		resp.Result = res.Value
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Code: "bad_request"})
		return false
	}
	return true
}

// ---- Reads ----

func (a *API) getBalance(w http.ResponseWriter, r *http.Request, p map[string]string) {
	a.read(w, r, func(ctx context.Context) (any, error) { return a.reader.GetBalance(ctx, p["player"]) })
}

func (a *API) getHistory(w http.ResponseWriter, r *http.Request, p map[string]string) {
	limit := intParam(r, "limit")
	a.read(w, r, func(ctx context.Context) (any, error) { return a.reader.GetHistory(ctx, p["player"], limit) })
}

func (a *API) getLeaderboard(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	limit := intParam(r, "limit")
	a.read(w, r, func(ctx context.Context) (any, error) { return a.reader.GetLeaderboard(ctx, limit) })
}

func (a *API) getListings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	a.read(w, r, func(ctx context.Context) (any, error) { return a.memory.GetListings(ctx) })
}

func (a *API) getAuctions(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	a.read(w, r, func(ctx context.Context) (any, error) { return a.memory.GetAuctions(ctx) })
}

func (a *API) getTreasury(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	a.read(w, r, func(ctx context.Context) (any, error) { return a.memory.GetTreasury(ctx) })
}

func (a *API) getIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	a.read(w, r, func(ctx context.Context) (any, error) { return a.memory.VerifyIntegrity(ctx) })
}

// getChain needs the postgres-backed reader.
func (a *API) getChain(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	a.read(w, r, func(ctx context.Context) (any, error) {
		cv, ok := a.reader.(query.ChainVerifier)
		if !ok {
			return nil, query.ErrNoCommandLog
		}
		return cv.VerifyChain(ctx)
	})
}

func (a *API) read(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (any, error)) {
	v, err := fn(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// intParam returns 0 for a missing or malformed value; readers clamp it.
func intParam(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
