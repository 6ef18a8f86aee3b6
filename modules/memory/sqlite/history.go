package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/flemzord/cvchat/internal/memory"
	"github.com/flemzord/cvchat/internal/style"
)

// timeLayout sorts lexically, which PruneBefore relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// historyStore implements memory.HistoryStore backed by SQLite.
type historyStore struct {
	db *sql.DB
}

// Append adds a turn to the session's history.
func (h *historyStore) Append(sessionID string, turn memory.Turn) error {
	ids := turn.MatchedTopicIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("sqlite: marshal topic_ids: %w", err)
	}

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	// HistoryStore interface does not carry context; use TODO as placeholder.
	_, err = h.db.ExecContext(context.TODO(), `
		INSERT INTO turns (session_id, seq, user_message, bot_response, topic_ids, confidence, style, created_at)
		VALUES (?, COALESCE((SELECT MAX(seq) FROM turns WHERE session_id = ?), 0) + 1,
		        ?, ?, ?, ?, ?, ?)`,
		sessionID, sessionID,
		turn.UserMessage, turn.BotResponse, string(idsJSON), turn.Confidence, string(turn.Style),
		ts.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append turn: %w", err)
	}

	return nil
}

// GetRecent returns the n most recent turns for a session.
func (h *historyStore) GetRecent(sessionID string, n int) ([]memory.Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := h.db.QueryContext(context.TODO(), `
		SELECT user_message, bot_response, topic_ids, confidence, style, created_at
		FROM turns
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT ?`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	slices.Reverse(turns)
	return turns, nil
}

// GetAll returns all turns for a session in chronological order.
func (h *historyStore) GetAll(sessionID string) ([]memory.Turn, error) {
	rows, err := h.db.QueryContext(context.TODO(), `
		SELECT user_message, bot_response, topic_ids, confidence, style, created_at
		FROM turns
		WHERE session_id = ?
		ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get all: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTurns(rows)
}

// Purge removes all history for a session.
func (h *historyStore) Purge(sessionID string) error {
	if _, err := h.db.ExecContext(context.TODO(), "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("sqlite: purge turns: %w", err)
	}
	return nil
}

// Len returns the number of turns stored for a session.
func (h *historyStore) Len(sessionID string) (int, error) {
	var count int
	err := h.db.QueryRowContext(context.TODO(),
		"SELECT COUNT(*) FROM turns WHERE session_id = ?", sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count turns: %w", err)
	}
	return count, nil
}

// PruneBefore deletes every turn recorded before cutoff.
func (h *historyStore) PruneBefore(cutoff time.Time) (int, error) {
	res, err := h.db.ExecContext(context.TODO(),
		"DELETE FROM turns WHERE created_at < ?", cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune turns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune rows affected: %w", err)
	}
	return int(n), nil
}

func scanTurns(rows *sql.Rows) ([]memory.Turn, error) {
	var turns []memory.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate turns: %w", err)
	}
	return turns, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(s scanner) (memory.Turn, error) {
	var (
		turn      memory.Turn
		idsJSON   string
		styleName string
		createdAt string
	)

	if err := s.Scan(&turn.UserMessage, &turn.BotResponse, &idsJSON, &turn.Confidence, &styleName, &createdAt); err != nil {
		return turn, fmt.Errorf("sqlite: scan turn: %w", err)
	}

	turn.Style = style.Style(styleName)

	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return turn, fmt.Errorf("sqlite: parse created_at: %w", err)
	}
	turn.Timestamp = ts

	if idsJSON != "" && idsJSON != "[]" {
		if err := json.Unmarshal([]byte(idsJSON), &turn.MatchedTopicIDs); err != nil {
			return turn, fmt.Errorf("sqlite: unmarshal topic_ids: %w", err)
		}
	}

	return turn, nil
}
