package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CacheLookup fetches a cached proposal by input hash.
func (s *Store) CacheLookup(inputHash string) (CacheEntry, error) {
	var (
		e          CacheEntry
		createdAt  string
		lastUsedAt string
	)
	err := s.db.QueryRow(`
		SELECT input_hash, proposal_text, trade, created_at, last_used_at
		FROM ai_proposal_cache WHERE input_hash = ?`, inputHash,
	).Scan(&e.InputHash, &e.ProposalText, &e.Trade, &createdAt, &lastUsedAt)
	if err == sql.ErrNoRows {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return CacheEntry{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.LastUsedAt, err = parseTime(lastUsedAt); err != nil {
		return CacheEntry{}, fmt.Errorf("parsing last_used_at: %w", err)
	}
	return e, nil
}

// CacheStore inserts (or replaces) a cache entry.
func (s *Store) CacheStore(e CacheEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO ai_proposal_cache (input_hash, proposal_text, trade, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(input_hash) DO UPDATE SET
			proposal_text = excluded.proposal_text,
			trade = excluded.trade,
			last_used_at = excluded.last_used_at`,
		e.InputHash, e.ProposalText, e.Trade, formatTime(e.CreatedAt), formatTime(e.LastUsedAt),
	)
	return err
}

// CacheTouch refreshes last_used_at on a hit (LRU hygiene).
func (s *Store) CacheTouch(inputHash string, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE ai_proposal_cache SET last_used_at = ? WHERE input_hash = ?`,
		formatTime(now), inputHash,
	)
	return err
}

// CacheEvict deletes entries whose last_used_at precedes the cutoff and
// returns how many rows were removed. Safe to call frequently.
func (s *Store) CacheEvict(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM ai_proposal_cache WHERE last_used_at < ?`,
		formatTime(olderThan),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
