package command

import (
	"encoding/json"
	"fmt"
)

// New returns an empty command of the given kind.
func New(kind Kind) (Command, error) {
	switch kind {
	case KindEarn:
		return &Earn{}, nil
	case KindSpend:
		return &Spend{}, nil
	case KindTransfer:
		return &Transfer{}, nil
	case KindListingCreate:
		return &CreateListing{}, nil
	case KindListingBuy:
		return &BuyListing{}, nil
	case KindListingCancel:
		return &CancelListing{}, nil
	case KindAuctionCreate:
		return &CreateAuction{}, nil
	case KindAuctionBid:
		return &PlaceBid{}, nil
	case KindStructureBuild:
		return &BuildStructure{}, nil
	case KindTick:
		return &Tick{}, nil
	default:
		return nil, fmt.Errorf("unknown command kind: %q", kind)
	}
}

// Decode parses a JSON payload into the command type for kind.
func Decode(kind Kind, payload []byte) (Command, error) {
	cmd, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return cmd, nil
}

// Encode serializes a command for the command log.
func Encode(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Kind(), err)
	}
	return data, nil
}
