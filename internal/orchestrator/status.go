package orchestrator

import (
	"errors"
	"fmt"

	"github.com/majorswap/relayer/internal/storage"
)

// Common errors
var (
	ErrNotFound     = errors.New("swap not found")
	ErrInvalidState = errors.New("invalid swap state")
	ErrValidation   = errors.New("invalid swap request")
	ErrUnknownToken = errors.New("unknown token for chain")
)

// Status represents the current state of a swap order.
type Status string

const (
	StatusPendingUserSignature Status = "pending_user_signature"
	StatusCreatingEscrows      Status = "creating_escrows"
	StatusEscrowsCreated       Status = "escrows_created"
	StatusAwaitingSecret       Status = "awaiting_secret"
	StatusSettling             Status = "settling"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
)

// validTransitions defines the swap state machine. Any status may move
// to failed; terminal states have no successors.
var validTransitions = map[Status][]Status{
	StatusPendingUserSignature: {StatusCreatingEscrows, StatusFailed},
	StatusCreatingEscrows:      {StatusEscrowsCreated, StatusFailed},
	StatusEscrowsCreated:       {StatusAwaitingSecret, StatusFailed},
	StatusAwaitingSecret:       {StatusSettling, StatusFailed},
	StatusSettling:             {StatusCompleted, StatusFailed},
	StatusCompleted:            {},
	StatusFailed:               {},
}

// transition moves an order to a new status, enforcing the state machine.
func transition(o *storage.SwapOrder, next Status) error {
	cur := Status(o.Status)
	allowed, ok := validTransitions[cur]
	if !ok {
		return fmt.Errorf("%w: unknown current state %s", ErrInvalidState, cur)
	}
	for _, s := range allowed {
		if s == next {
			o.Status = string(next)
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidState, cur, next)
}

// IsTerminal returns true for states with no successors.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}
