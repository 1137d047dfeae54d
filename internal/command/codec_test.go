package command_test

import (
	"SparkLedger/internal/command"
	"testing"
)

// ============================================================================
// Test: Codec
// ============================================================================

func TestDecode_EveryKind(t *testing.T) {
	for _, kind := range command.AllKinds {
		cmd, err := command.Decode(kind, []byte(`{"command_id":"c-1","timestamp":42}`))
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if cmd.Kind() != kind {
			t.Errorf("got %s, want %s", cmd.Kind(), kind)
		}
		if cmd.CommandID() != "c-1" || cmd.At() != 42 {
			t.Errorf("%s: meta got %q/%d", kind, cmd.CommandID(), cmd.At())
		}
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	if _, err := command.Decode("mint", []byte(`{}`)); err == nil {
		t.Error("expected error for unknown kind")
	}
	if command.Kind("mint").Valid() {
		t.Error("mint should not be a valid kind")
	}
}

func TestEncodeDecode_Earn(t *testing.T) {
	c := 0.25
	in := &command.Earn{
		Meta:       command.Meta{ID: "e-1", Timestamp: 1000},
		Player:     "p1",
		Activity:   "craft",
		Complexity: &c,
	}
	data, err := command.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := command.Decode(command.KindEarn, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := out.(*command.Earn)
	if got.Player != "p1" || got.Activity != "craft" || got.Complexity == nil || *got.Complexity != 0.25 {
		t.Errorf("got %+v", got)
	}
}
