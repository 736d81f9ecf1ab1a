package common

import (
	"fmt"
	"strconv"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"
)

// ParseAddress parses a hex-encoded 20-byte account address.
func ParseAddress(s string) (ethCommon.Address, error) {
	if !ethCommon.IsHexAddress(s) {
		return ethCommon.Address{}, fmt.Errorf("malformed address '%s'", s)
	}
	return ethCommon.HexToAddress(s), nil
}

// ParseHash parses a 0x-prefixed, hex-encoded 32-byte hash.
func ParseHash(s string) (ethCommon.Hash, error) {
	var h ethCommon.Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return ethCommon.Hash{}, fmt.Errorf("malformed hash '%s': %w", s, err)
	}
	return h, nil
}

// ParseAmount parses a base-10 non-negative amount.
func ParseAmount(s string) (quantity.Quantity, error) {
	var q quantity.Quantity
	if err := q.UnmarshalText([]byte(s)); err != nil {
		return quantity.Quantity{}, fmt.Errorf("malformed amount '%s': %w", s, err)
	}
	return q, nil
}

// ParseTaskID parses a decimal task id.
func ParseTaskID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed task id '%s': %w", s, err)
	}
	return id, nil
}
