package core

import (
	"encoding/binary"
	"strings"
	"testing"
)

func TestAppendString_LengthPrefixNotTruncated(t *testing.T) {
	for _, n := range []int{0, 1, 255, 256, 300, 70_000} {
		s := strings.Repeat("x", n)
		buf := appendString(nil, s)

		got, width := binary.Uvarint(buf)
		if width <= 0 {
			t.Fatalf("len %d: bad prefix", n)
		}
		if got != uint64(n) || len(buf)-width != n {
			t.Errorf("len %d: prefix %d, body %d bytes", n, got, len(buf)-width)
		}
	}

	// A long string must not collide with a short one plus trailing bytes
	long := appendString(nil, strings.Repeat("a", 257))
	short := appendString(appendString(nil, "a"), strings.Repeat("a", 254))
	if string(long) == string(short) {
		t.Error("distinct string sequences encode identically")
	}
}
