package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched no row, e.g.
// responding to a proposal that is no longer pending or whose acceptance
// token has already been consumed.
var ErrConflict = errors.New("state conflict")

// Status is the lifecycle state of a proposal. Transitions are one-shot:
// pending → accepted or pending → declined, both terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Valid reports whether s is one of the known proposal states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined:
		return true
	}
	return false
}

// Proposal is a finalized proposal document prepared for delivery.
type Proposal struct {
	ID           string
	CreatedAt    time.Time
	BusinessName string
	ClientEmail  string
	ProposalText string
	ProposalHash string // SHA-256 over text + business name, tamper evidence
	Status       Status

	RespondedAt   *time.Time
	RespondedName string
	RespondedIP   string
	DeclineReason string

	// Single-use acceptance credential; cleared when the proposal is
	// accepted or declined so the link cannot be replayed.
	AcceptToken     string
	AcceptExpiresAt *time.Time
}

// Resolved reports whether the proposal has left the pending state.
func (p Proposal) Resolved() bool {
	return p.Status != StatusPending
}

// CacheEntry is a previously generated proposal keyed by a deterministic
// hash of the generation-relevant inputs.
type CacheEntry struct {
	InputHash    string
	ProposalText string
	Trade        string
	CreatedAt    time.Time
	LastUsedAt   time.Time
}
