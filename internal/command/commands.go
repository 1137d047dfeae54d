package command

// Meta carries the fields every command shares.
type Meta struct {
	ID        string `json:"command_id"`
	Timestamp int64  `json:"timestamp"` // Epoch milliseconds
}

func (m Meta) CommandID() string { return m.ID }
func (m Meta) At() int64         { return m.Timestamp }

type Earn struct {
	Meta
	Player     string   `json:"player"`
	Activity   string   `json:"activity"`
	Complexity *float64 `json:"complexity,omitempty"`
	Rarity     *float64 `json:"rarity,omitempty"`
}

func (*Earn) Kind() Kind { return KindEarn }

type Spend struct {
	Meta
	Player string `json:"player"`
	Amount int64  `json:"amount"`
	Item   string `json:"item,omitempty"`
}

func (*Spend) Kind() Kind { return KindSpend }

type Transfer struct {
	Meta
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo,omitempty"`
}

func (*Transfer) Kind() Kind { return KindTransfer }

type CreateListing struct {
	Meta
	Seller string `json:"seller"`
	Item   string `json:"item"`
	Price  int64  `json:"price"`
}

func (*CreateListing) Kind() Kind { return KindListingCreate }

type BuyListing struct {
	Meta
	ListingID string `json:"listing_id"`
	Buyer     string `json:"buyer"`
}

func (*BuyListing) Kind() Kind { return KindListingBuy }

type CancelListing struct {
	Meta
	ListingID string `json:"listing_id"`
	Seller    string `json:"seller"`
}

func (*CancelListing) Kind() Kind { return KindListingCancel }

type CreateAuction struct {
	Meta
	Seller      string `json:"seller"`
	Item        string `json:"item"`
	StartingBid int64  `json:"starting_bid"`
	DurationMs  int64  `json:"duration_ms,omitempty"` // <= 0 uses the default
}

func (*CreateAuction) Kind() Kind { return KindAuctionCreate }

type PlaceBid struct {
	Meta
	AuctionID string `json:"auction_id"`
	Bidder    string `json:"bidder"`
	Amount    int64  `json:"amount"`
}

func (*PlaceBid) Kind() Kind { return KindAuctionBid }

type BuildStructure struct {
	Meta
	Owner         string `json:"owner"`
	StructureKind string `json:"structure_kind"`
}

func (*BuildStructure) Kind() Kind { return KindStructureBuild }

// Tick runs the periodic economy. Day 0 derives the game day from Timestamp.
type Tick struct {
	Meta
	Day int64 `json:"day,omitempty"`
}

func (*Tick) Kind() Kind { return KindTick }
