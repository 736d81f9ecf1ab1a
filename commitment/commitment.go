// Package commitment implements a generic commit-reveal scheme.
//
// A party first publishes only the hash of a value. Later it discloses the
// value, which is accepted only if it hashes to the published commitment.
package commitment

import (
	"errors"
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNoSuchCommitment is returned when revealing a value that was never committed.
	ErrNoSuchCommitment = errors.New("no such commitment")
	// ErrCommitmentMismatch is returned when a revealed value does not hash to the commitment.
	ErrCommitmentMismatch = errors.New("commitment mismatch")
	// ErrAlreadyRevealed is returned when revealing a commitment a second time.
	ErrAlreadyRevealed = errors.New("commitment already revealed")
	// ErrAlreadyCommitted is returned when committing to an occupied slot.
	ErrAlreadyCommitted = errors.New("already committed")
)

// Hasher computes the commitment hash of a value.
type Hasher[T any] func(T) ethCommon.Hash

// Commitment is a single commit-reveal slot.
type Commitment[T any] struct {
	Hash      ethCommon.Hash `json:"hash"`
	Value     T              `json:"value"`
	Committed bool           `json:"committed"`
	Revealed  bool           `json:"revealed"`
}

// Commit stores the hash of a value that will be revealed later.
func (c *Commitment[T]) Commit(hash ethCommon.Hash) error {
	if c.Committed {
		return ErrAlreadyCommitted
	}
	c.Hash = hash
	c.Committed = true
	return nil
}

// Check verifies that value opens the commitment, without recording the reveal.
func (c *Commitment[T]) Check(value T, hasher Hasher[T]) error {
	switch {
	case !c.Committed:
		return ErrNoSuchCommitment
	case c.Revealed:
		return ErrAlreadyRevealed
	}
	if got := hasher(value); got != c.Hash {
		return fmt.Errorf("%w: committed %s, revealed value hashes to %s", ErrCommitmentMismatch, c.Hash.Hex(), got.Hex())
	}
	return nil
}

// Reveal opens the commitment with value. On failure the commitment is left untouched.
func (c *Commitment[T]) Reveal(value T, hasher Hasher[T]) error {
	if err := c.Check(value, hasher); err != nil {
		return err
	}
	c.Value = value
	c.Revealed = true
	return nil
}
