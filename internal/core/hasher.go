package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const GenesisHashSeed = "SparkLedger:genesis:v1"

// StateHasher chains state hashes across applied commands
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher initializes with genesis hash
func NewStateHasher() *StateHasher {
	return &StateHasher{
		prevHash: GenesisHash(),
	}
}

// GenesisHash is the chain origin before any command is applied.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// ComputeHash calculates state_hash[N] = SHA-256(prev_hash || sequence || state_digest)
// and advances the chain.
func (h *StateHasher) ComputeHash(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()

	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))

	h.prevHash = hash

	return hash
}

// GetPrevHash returns current chain tip
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// SetPrevHash resets the chain tip (snapshot restore).
func (h *StateHasher) SetPrevHash(hash [32]byte) {
	h.prevHash = hash
}

// HashHex renders a hash for logs and APIs.
func HashHex(hash [32]byte) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash decodes a hex hash produced by HashHex.
func ParseHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return hash, fmt.Errorf("decode hash: %w", err)
	}
	if len(raw) != len(hash) {
		return hash, fmt.Errorf("hash must be %d bytes, got %d", len(hash), len(raw))
	}
	copy(hash[:], raw)
	return hash, nil
}
