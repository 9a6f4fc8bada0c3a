package swapstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// migrateLegacy rewrites either prior on-disk format into the current
// "swaps" schema, once, per §6 ("two prior formats"). Both are read-only
// detections: a flat kv table ("settings" table shape) that may hold a
// JSON-dumped swap list under a well-known key, and an older
// "active_swaps" table from before this store existed.
func (s *Store) migrateLegacy() error {
	if err := s.migrateFromKV(); err != nil {
		return fmt.Errorf("kv migration: %w", err)
	}
	if err := s.migrateFromActiveSwaps(); err != nil {
		return fmt.Errorf("active_swaps migration: %w", err)
	}
	return nil
}

const legacyKVSwapsKey = "legacy_swaps_dump"

// legacyKVSwap is the shape a pre-swapstore kv dump used for a swap row.
type legacyKVSwap struct {
	ID          string `json:"id"`
	Type        int    `json:"type"`
	State       int    `json:"state"`
	ChainID     string `json:"chain_id"`
	Initiator   string `json:"initiator_address"`
	InputAmount uint64 `json:"input_amount"`
	CreatedAt   int64  `json:"created_at"`
}

func (s *Store) migrateFromKV() error {
	var tableName string
	if err := s.db.QueryRow(legacyKVDetect).Scan(&tableName); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}

	var raw sql.NullString
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", legacyKVSwapsKey).Scan(&raw)
	if err == sql.ErrNoRows || !raw.Valid {
		return nil
	}
	if err != nil {
		return err
	}

	var legacy []legacyKVSwap
	if err := json.Unmarshal([]byte(raw.String), &legacy); err != nil {
		s.log.Warn("legacy kv swap dump unreadable, skipping migration", "error", err)
		return nil
	}

	for _, l := range legacy {
		now := time.Now()
		_, err := s.db.Exec(upsertQuery,
			l.ID, l.Type, l.State, l.ChainID, l.Initiator, nil, nil,
			0, nil, nil, nil, int64(l.InputAmount),
			0, nil, nil, nil, 0,
			[]byte("null"), []byte("null"), []byte("{}"), []byte("{}"),
			nil, nil, nil, nil,
			l.CreatedAt, l.CreatedAt, l.CreatedAt, l.CreatedAt, nil,
			nil, nil, nil, now.Unix(),
		)
		if err != nil {
			s.log.Warn("failed to migrate legacy kv swap row", "id", l.ID, "error", err)
		}
	}

	_, err = s.db.Exec("DELETE FROM settings WHERE key = ?", legacyKVSwapsKey)
	return err
}

func (s *Store) migrateFromActiveSwaps() error {
	var tableName string
	if err := s.db.QueryRow(legacyActiveSwapsDetect).Scan(&tableName); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}

	rows, err := s.db.Query(`SELECT trade_id, offer_chain, offer_amount, state, created_at, updated_at FROM active_swaps`)
	if err != nil {
		// Column layout from a yet-older build; nothing to migrate safely.
		return nil
	}
	defer rows.Close()

	migratedCount := 0
	for rows.Next() {
		var tradeID, offerChain, state string
		var offerAmount, createdAt, updatedAt int64
		if err := rows.Scan(&tradeID, &offerChain, &offerAmount, &state, &createdAt, &updatedAt); err != nil {
			continue
		}

		_, err := s.db.Exec(upsertQuery,
			"legacy-"+tradeID, 0, legacyStateCode(state), offerChain, "", nil, nil,
			0, nil, nil, nil, offerAmount,
			0, nil, nil, nil, 0,
			[]byte("null"), []byte("null"), []byte("{}"), []byte("{}"),
			nil, nil, nil, nil,
			createdAt, createdAt, createdAt, createdAt, nil,
			nil, nil, nil, updatedAt,
		)
		if err != nil {
			s.log.Warn("failed to migrate legacy active_swaps row", "trade_id", tradeID, "error", err)
			continue
		}
		migratedCount++
	}

	if migratedCount > 0 {
		s.log.Info("migrated legacy active_swaps rows", "count", migratedCount)
	}
	return nil
}

// legacyStateCode maps legacy string swap states onto the shared
// negative failure axis (§4.4.1) where a clean mapping exists, else 0.
func legacyStateCode(legacyState string) int {
	switch legacyState {
	case "failed", "cancelled":
		return -4
	default:
		return 0
	}
}
