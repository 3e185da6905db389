package storage

import (
	"database/sql"
	"time"
)

// FreeUsage returns the used-count for an identity key, 0 if unknown.
func (s *Store) FreeUsage(key string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT used_count FROM free_usage WHERE key = ?", key).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// IncrementFreeUsage inserts a record at count 1 or atomically increments
// an existing one, refreshing last_used_at. The upsert keeps concurrent
// callers with the same key from losing updates.
func (s *Store) IncrementFreeUsage(key string, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO free_usage (key, used_count, last_used_at)
		VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			used_count = used_count + 1,
			last_used_at = excluded.last_used_at`,
		key, formatTime(now),
	)
	return err
}
