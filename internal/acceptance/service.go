// Package acceptance implements the token-gated accept/decline workflow
// for delivered proposals.
package acceptance

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/gtjio/gtj/internal/storage"
)

// maxDeclineReason caps the optional free-text reason on decline.
const maxDeclineReason = 1000

var (
	// ErrNotFound mirrors storage: no such proposal.
	ErrNotFound = errors.New("proposal not found")
	// ErrAlreadyResolved is returned when the proposal has left pending.
	ErrAlreadyResolved = errors.New("proposal already responded to")
	// ErrTokenMismatch is returned for a missing or wrong acceptance token.
	ErrTokenMismatch = errors.New("invalid acceptance token")
	// ErrTokenExpired is returned when the link's expiry has passed.
	ErrTokenExpired = errors.New("acceptance token expired")
	// ErrNameRequired is returned when accepting without a responder name.
	ErrNameRequired = errors.New("responder name required")
	// ErrReasonTooLong is returned when the decline reason exceeds the cap.
	ErrReasonTooLong = errors.New("decline reason too long")
)

// Service enforces the one-shot pending → accepted/declined transition.
type Service struct {
	store *storage.Store
	now   func() time.Time
}

func NewService(store *storage.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// NewServiceWithClock creates a Service with a custom clock (for testing).
func NewServiceWithClock(store *storage.Store, now func() time.Time) *Service {
	return &Service{store: store, now: now}
}

// View returns the proposal for display. A resolved proposal is publicly
// viewable; a pending one requires a valid, unexpired token.
func (s *Service) View(id, token string) (storage.Proposal, error) {
	p, err := s.store.GetProposal(id)
	if err == storage.ErrNotFound {
		return storage.Proposal{}, ErrNotFound
	}
	if err != nil {
		return storage.Proposal{}, err
	}
	if p.Resolved() {
		return p, nil
	}
	if err := s.checkToken(p, token); err != nil {
		return storage.Proposal{}, err
	}
	return p, nil
}

// Accept transitions a pending proposal to accepted. A non-empty responder
// name is required; the acceptance token is consumed on success.
func (s *Service) Accept(id, token, name, ip string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	return s.respond(id, token, storage.Response{
		Status:        storage.StatusAccepted,
		RespondedName: name,
		RespondedIP:   ip,
	})
}

// Decline transitions a pending proposal to declined. The optional reason
// is size-capped.
func (s *Service) Decline(id, token, reason, ip string) error {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxDeclineReason {
		return ErrReasonTooLong
	}
	return s.respond(id, token, storage.Response{
		Status:        storage.StatusDeclined,
		DeclineReason: reason,
		RespondedIP:   ip,
	})
}

func (s *Service) respond(id, token string, resp storage.Response) error {
	p, err := s.store.GetProposal(id)
	if err == storage.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if p.Resolved() {
		return ErrAlreadyResolved
	}
	if err := s.checkToken(p, token); err != nil {
		return err
	}

	resp.RespondedAt = s.now()

	// The storage update re-checks status and token in its WHERE clause,
	// so a concurrent submission that won the race surfaces here as a
	// conflict rather than a second successful transition.
	err = s.store.RespondProposal(id, token, resp)
	if err == storage.ErrConflict {
		return ErrAlreadyResolved
	}
	return err
}

// checkToken validates the supplied token against the stored single-use
// secret and its expiry. Comparison is constant-time.
func (s *Service) checkToken(p storage.Proposal, token string) error {
	if p.AcceptToken == "" || token == "" ||
		subtle.ConstantTimeCompare([]byte(p.AcceptToken), []byte(token)) != 1 {
		return ErrTokenMismatch
	}
	if p.AcceptExpiresAt == nil || s.now().After(*p.AcceptExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}
