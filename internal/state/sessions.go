package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tclaveria/concierge/pkg/models"
)

// Load fetches a session and its turn history. It returns (nil, nil) for an
// unknown session id. Decode failures are returned as errors so the session
// store can degrade to a fresh session.
func (db *DB) Load(ctx context.Context, sessionID string) (*models.Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	sess := &models.Session{ID: sessionID}

	var memoryJSON string
	var pendingJSON sql.NullString
	row := db.conn.QueryRowContext(ctx,
		"SELECT memory, pending, created_at, updated_at FROM sessions WHERE id = ?", sessionID)
	err := row.Scan(&memoryJSON, &pendingJSON, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	if err := json.Unmarshal([]byte(memoryJSON), &sess.Memory); err != nil {
		return nil, fmt.Errorf("decode session %s memory: %w", sessionID, err)
	}
	if pendingJSON.Valid && pendingJSON.String != "" {
		var pending models.PendingConfirmation
		if err := json.Unmarshal([]byte(pendingJSON.String), &pending); err != nil {
			return nil, fmt.Errorf("decode session %s pending confirmation: %w", sessionID, err)
		}
		sess.Pending = &pending
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT record FROM turns WHERE session_id = ? ORDER BY seq", sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s turns: %w", sessionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan turn record: %w", err)
		}
		var turn models.Turn
		if err := json.Unmarshal([]byte(record), &turn); err != nil {
			return nil, fmt.Errorf("decode turn record: %w", err)
		}
		sess.Turns = append(sess.Turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn records: %w", err)
	}

	return sess, nil
}

// Save upserts the session row and appends any turns not yet stored. Turns
// are immutable once written, so existing seq rows are never updated.
func (db *DB) Save(ctx context.Context, sess *models.Session) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	memoryJSON, err := json.Marshal(sess.Memory)
	if err != nil {
		return fmt.Errorf("encode session %s memory: %w", sess.ID, err)
	}

	var pendingJSON sql.NullString
	if sess.Pending != nil {
		data, err := json.Marshal(sess.Pending)
		if err != nil {
			return fmt.Errorf("encode session %s pending confirmation: %w", sess.ID, err)
		}
		pendingJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, memory, pending, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			memory = excluded.memory,
			pending = excluded.pending,
			updated_at = excluded.updated_at
	`, sess.ID, string(memoryJSON), pendingJSON, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("upsert session %s: %w", sess.ID, err)
	}

	var stored int
	row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns WHERE session_id = ?", sess.ID)
	if err := row.Scan(&stored); err != nil {
		tx.Rollback()
		return fmt.Errorf("count stored turns: %w", err)
	}

	for seq := stored; seq < len(sess.Turns); seq++ {
		record, err := json.Marshal(sess.Turns[seq])
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode turn %d: %w", seq, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO turns (session_id, seq, record) VALUES (?, ?, ?)",
			sess.ID, seq, string(record))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert turn %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}
