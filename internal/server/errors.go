package server

import (
	"SparkLedger/internal/core"
	"SparkLedger/internal/ledger"
	"SparkLedger/internal/market"
	"SparkLedger/internal/query"
	"errors"
	"net/http"
)

// StatusFor maps domain errors to an HTTP status and a short code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, market.ErrSelfTrade), errors.Is(err, ledger.ErrSelfTransfer):
		return http.StatusBadRequest, "self_trade"
	case errors.Is(err, ledger.ErrInvalidAccount), errors.Is(err, market.ErrInvalidItem),
		errors.Is(err, core.ErrMissingCommandID), errors.Is(err, core.ErrMissingTimestamp):
		return http.StatusBadRequest, "bad_request"

	case errors.Is(err, market.ErrNotFound), errors.Is(err, query.ErrUnknownAccount),
		errors.Is(err, query.ErrNoCommandLog):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusConflict, "insufficient_funds"
	case errors.Is(err, market.ErrInactive):
		return http.StatusConflict, "inactive"
	case errors.Is(err, market.ErrAuctionEnded):
		return http.StatusConflict, "auction_ended"
	case errors.Is(err, market.ErrBidTooLow):
		return http.StatusConflict, "bid_too_low"

	case errors.Is(err, market.ErrNotSeller):
		return http.StatusForbidden, "not_seller"
	case errors.Is(err, ledger.ErrReservedAccount):
		return http.StatusForbidden, "reserved_account"

	default:
		return http.StatusInternalServerError, "internal"
	}
}
