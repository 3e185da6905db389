package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is the ISO-UTC convention used across all tables.
const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// SaveProposal inserts a new proposal record.
func (s *Store) SaveProposal(p Proposal) error {
	status := p.Status
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return fmt.Errorf("invalid proposal status %q", status)
	}

	var expiresAt any
	if p.AcceptExpiresAt != nil {
		expiresAt = formatTime(*p.AcceptExpiresAt)
	}

	_, err := s.db.Exec(`
		INSERT INTO proposals (id, created_at, business_name, client_email, proposal_text, proposal_hash, status, accept_token, accept_expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, formatTime(p.CreatedAt), p.BusinessName, p.ClientEmail,
		p.ProposalText, p.ProposalHash, string(status), nullable(p.AcceptToken), expiresAt,
	)
	return err
}

// GetProposal fetches a proposal by id.
func (s *Store) GetProposal(id string) (Proposal, error) {
	var (
		p         Proposal
		status    string
		createdAt string
		business  sql.NullString
		email     sql.NullString
		respAt    sql.NullString
		respName  sql.NullString
		respIP    sql.NullString
		reason    sql.NullString
		token     sql.NullString
		expiresAt sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT id, created_at, business_name, client_email, proposal_text, proposal_hash, status,
		       responded_at, responded_name, responded_ip, decline_reason, accept_token, accept_expires_at
		FROM proposals WHERE id = ?`, id,
	).Scan(&p.ID, &createdAt, &business, &email, &p.ProposalText, &p.ProposalHash,
		&status, &respAt, &respName, &respIP, &reason, &token, &expiresAt)
	if err == sql.ErrNoRows {
		return Proposal{}, ErrNotFound
	}
	if err != nil {
		return Proposal{}, err
	}

	p.Status = Status(status)
	p.BusinessName = business.String
	p.ClientEmail = email.String
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Proposal{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if respAt.Valid {
		t, err := parseTime(respAt.String)
		if err != nil {
			return Proposal{}, fmt.Errorf("parsing responded_at: %w", err)
		}
		p.RespondedAt = &t
	}
	p.RespondedName = respName.String
	p.RespondedIP = respIP.String
	p.DeclineReason = reason.String
	p.AcceptToken = token.String
	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return Proposal{}, fmt.Errorf("parsing accept_expires_at: %w", err)
		}
		p.AcceptExpiresAt = &t
	}
	return p, nil
}

// Response records the outcome of an accept or decline transition.
type Response struct {
	Status        Status
	RespondedAt   time.Time
	RespondedName string
	RespondedIP   string
	DeclineReason string
}

// RespondProposal transitions a pending proposal to accepted or declined.
// The update is conditional on the proposal still being pending and the
// supplied acceptance token still being stored, so two concurrent
// submissions cannot both succeed. The token and its expiry are cleared
// in the same statement, consuming the single-use credential.
// Returns ErrConflict when the conditional update matched no row.
func (s *Store) RespondProposal(id, acceptToken string, resp Response) error {
	if resp.Status != StatusAccepted && resp.Status != StatusDeclined {
		return fmt.Errorf("invalid response status %q", resp.Status)
	}

	res, err := s.db.Exec(`
		UPDATE proposals
		SET status = ?, responded_at = ?, responded_name = ?, responded_ip = ?, decline_reason = ?,
		    accept_token = NULL, accept_expires_at = NULL
		WHERE id = ? AND status = ? AND accept_token = ?`,
		string(resp.Status), formatTime(resp.RespondedAt), resp.RespondedName,
		resp.RespondedIP, nullable(resp.DeclineReason),
		id, string(StatusPending), acceptToken,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// RecentProposals returns the most recently created proposals.
func (s *Store) RecentProposals(limit int) ([]Proposal, error) {
	rows, err := s.db.Query(`SELECT id FROM proposals ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]Proposal, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProposal(id)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, nil
}

// nullable maps "" to SQL NULL so optional text columns stay NULL rather
// than empty string.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
