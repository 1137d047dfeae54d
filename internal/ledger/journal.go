package ledger

import (
	fpmath "SparkLedger/internal/math"
)

// TxType represents the purpose of a transaction
type TxType string

const (
	TxTypeEarn           TxType = "earn"
	TxTypeTax            TxType = "tax"
	TxTypeSpend          TxType = "spend"
	TxTypeTransfer       TxType = "transfer"
	TxTypeMarketPurchase TxType = "market_purchase"
	TxTypeUBI            TxType = "ubi"
	TxTypeWealthTax      TxType = "wealth_tax"
	TxTypeAuction        TxType = "auction"
)

// AllTxTypes lists every transaction type in a stable order.
var AllTxTypes = []TxType{
	TxTypeEarn, TxTypeTax, TxTypeSpend, TxTypeTransfer,
	TxTypeMarketPurchase, TxTypeUBI, TxTypeWealthTax, TxTypeAuction,
}

// Transaction is an immutable log record. Exactly one payload pointer is set,
// matching Type.
//
// Every transaction moves Amount from From to To. SYSTEM as From mints,
// SYSTEM as To destroys. Replaying the log from the opening balances
// reproduces the current balances exactly.
type Transaction struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`       // Position in the log, 1-based
	Timestamp int64  `json:"timestamp"` // Epoch milliseconds
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"` // ALWAYS non-negative
	Type      TxType `json:"type"`

	Earn      *EarnDetails      `json:"earn,omitempty"`
	Tax       *TaxDetails       `json:"tax,omitempty"`
	Spend     *SpendDetails     `json:"spend,omitempty"`
	Transfer  *TransferDetails  `json:"transfer,omitempty"`
	Purchase  *PurchaseDetails  `json:"purchase,omitempty"`
	UBI       *UBIDetails       `json:"ubi,omitempty"`
	WealthTax *WealthTaxDetails `json:"wealth_tax,omitempty"`
	Auction   *AuctionDetails   `json:"auction,omitempty"`
}

// Payload is implemented by every per-type details struct.
type Payload interface {
	TxType() TxType
}

// EarnDetails: SYSTEM -> player, Amount is the gross issuance.
type EarnDetails struct {
	Activity string     `json:"activity"`
	Gross    int64      `json:"gross"`
	Net      int64      `json:"net"`
	Tax      int64      `json:"tax"`
	Rate     fpmath.Bps `json:"rate_bps"`
	Event    string     `json:"event,omitempty"` // Event that boosted this earn, if any
	Base     int64      `json:"base"`            // Gross before the event multiplier
}

// TaxDetails: player -> TREASURY, withheld from the linked earn.
type TaxDetails struct {
	Activity string     `json:"activity"`
	Rate     fpmath.Bps `json:"rate_bps"`
	EarnTxID string     `json:"earn_tx_id"`
}

// SpendReason classifies destroyed Spark.
type SpendReason string

const (
	SpendReasonPurchase    SpendReason = "purchase"
	SpendReasonListingFee  SpendReason = "listing_fee"
	SpendReasonMaintenance SpendReason = "structure_maintenance"
)

// SpendDetails: player -> SYSTEM, destroyed.
type SpendDetails struct {
	Reason      SpendReason `json:"reason"`
	Item        string      `json:"item,omitempty"`
	ListingID   string      `json:"listing_id,omitempty"`
	StructureID string      `json:"structure_id,omitempty"`
}

// TransferDetails: player -> player.
type TransferDetails struct {
	Memo string `json:"memo,omitempty"`
}

// PurchaseDetails: buyer -> seller for a fixed-price listing.
type PurchaseDetails struct {
	ListingID string `json:"listing_id"`
	Item      string `json:"item"`
}

// UBIDetails: TREASURY -> player.
type UBIDetails struct {
	PerPlayer int64 `json:"per_player"`
	Day       int64 `json:"day"`
}

// WealthTaxDetails: player -> TREASURY.
type WealthTaxDetails struct {
	BalanceBefore int64      `json:"balance_before"`
	BalanceAfter  int64      `json:"balance_after"`
	Threshold     int64      `json:"threshold"`
	Rate          fpmath.Bps `json:"rate_bps"`
}

// AuctionDetails: winning bidder -> seller.
type AuctionDetails struct {
	AuctionID string `json:"auction_id"`
	Item      string `json:"item"`
	Bids      int    `json:"bids"`
}

func (*EarnDetails) TxType() TxType      { return TxTypeEarn }
func (*TaxDetails) TxType() TxType       { return TxTypeTax }
func (*SpendDetails) TxType() TxType     { return TxTypeSpend }
func (*TransferDetails) TxType() TxType  { return TxTypeTransfer }
func (*PurchaseDetails) TxType() TxType  { return TxTypeMarketPurchase }
func (*UBIDetails) TxType() TxType       { return TxTypeUBI }
func (*WealthTaxDetails) TxType() TxType { return TxTypeWealthTax }
func (*AuctionDetails) TxType() TxType   { return TxTypeAuction }

// Payload returns whichever typed payload is set, or nil.
func (tx *Transaction) Payload() Payload {
	switch tx.Type {
	case TxTypeEarn:
		return tx.Earn
	case TxTypeTax:
		return tx.Tax
	case TxTypeSpend:
		return tx.Spend
	case TxTypeTransfer:
		return tx.Transfer
	case TxTypeMarketPurchase:
		return tx.Purchase
	case TxTypeUBI:
		return tx.UBI
	case TxTypeWealthTax:
		return tx.WealthTax
	case TxTypeAuction:
		return tx.Auction
	}
	return nil
}

func (tx *Transaction) setPayload(p Payload) {
	tx.Type = p.TxType()
	switch d := p.(type) {
	case *EarnDetails:
		tx.Earn = d
	case *TaxDetails:
		tx.Tax = d
	case *SpendDetails:
		tx.Spend = d
	case *TransferDetails:
		tx.Transfer = d
	case *PurchaseDetails:
		tx.Purchase = d
	case *UBIDetails:
		tx.UBI = d
	case *WealthTaxDetails:
		tx.WealthTax = d
	case *AuctionDetails:
		tx.Auction = d
	}
}

// Involves reports whether account is on either side of the transaction.
func (tx *Transaction) Involves(account string) bool {
	return tx.From == account || tx.To == account
}
