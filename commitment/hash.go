package commitment

import (
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Word is a 256-bit unsigned integer in its 32-byte big-endian encoding.
type Word = ethCommon.Hash

// Intent values a verifier may reveal.
const (
	IntentAccept  uint64 = 0
	IntentDispute uint64 = 1
)

// WordFromUint64 encodes n as a Word.
func WordFromUint64(n uint64) Word {
	return WordFromBig(new(big.Int).SetUint64(n))
}

// WordFromBig encodes a non-negative integer of at most 256 bits as a Word.
// Larger or negative values are reduced modulo 2^256.
func WordFromBig(n *big.Int) Word {
	// U256Bytes modifies its argument.
	return ethCommon.BytesToHash(math.U256Bytes(new(big.Int).Set(n)))
}

// ParseWord parses a decimal or 0x-prefixed hexadecimal 256-bit integer.
func ParseWord(s string) (Word, error) {
	n, ok := math.ParseBig256(s)
	if !ok {
		return Word{}, fmt.Errorf("malformed 256-bit integer '%s'", s)
	}
	return WordFromBig(n), nil
}

// HashWord is keccak256 over the 32-byte big-endian encoding of w, the same
// digest Solidity computes for keccak256(abi.encodePacked(uint256)).
func HashWord(w Word) ethCommon.Hash {
	return crypto.Keccak256Hash(w.Bytes())
}

// HashIntent is the commitment hash of a verifier intent.
func HashIntent(intent uint64) ethCommon.Hash {
	return HashWord(WordFromUint64(intent))
}

// HashUint64 is the commitment hash of a small integer.
func HashUint64(n uint64) ethCommon.Hash {
	return HashWord(WordFromUint64(n))
}
