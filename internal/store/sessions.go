package store

import (
	"fmt"
	"time"
)

// BeginSession records a new in-progress session, returning its id.
func (db *DB) BeginSession(gameID, profileID string, startedAt time.Time) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO session_history (game_id, profile_id, started_at)
		VALUES (?, ?, ?)`,
		gameID, profileID, startedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("begin session for %s: %w", gameID, err)
	}
	return res.LastInsertId()
}

// CompleteSession finalizes a session record with its end-of-capture
// statistics.
func (db *DB) CompleteSession(id int64, rec SessionRecord) error {
	var processExited, ended any
	if rec.ProcessExitedAt != nil {
		processExited = rec.ProcessExitedAt.UTC().Format(time.RFC3339)
	}
	if rec.EndedAt != nil {
		ended = rec.EndedAt.UTC().Format(time.RFC3339)
	}

	_, err := db.conn.Exec(`
		UPDATE session_history SET
			process_exited_at = ?, ended_at = ?, playtime_seconds = ?,
			files_tracked = ?, cumulative_bytes = ?, cap_breached = ?, upload_committed = ?
		WHERE id = ?`,
		processExited, ended, rec.PlaytimeSeconds, rec.FilesTracked, rec.CumulativeBytes,
		rec.CapBreached, rec.UploadCommitted, id)
	if err != nil {
		return fmt.Errorf("complete session %d: %w", id, err)
	}
	return nil
}

// RecentSessions returns the most recent sessions for a game, newest first.
func (db *DB) RecentSessions(gameID string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, game_id, profile_id, started_at, process_exited_at, ended_at,
		       playtime_seconds, files_tracked, cumulative_bytes, cap_breached, upload_committed
		FROM session_history WHERE game_id = ? ORDER BY started_at DESC LIMIT ?`, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", gameID, err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var startedAt string
		var processExited, ended *string
		if err := rows.Scan(&r.ID, &r.GameID, &r.ProfileID, &startedAt, &processExited, &ended,
			&r.PlaytimeSeconds, &r.FilesTracked, &r.CumulativeBytes, &r.CapBreached, &r.UploadCommitted); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if processExited != nil {
			if t, err := time.Parse(time.RFC3339, *processExited); err == nil {
				r.ProcessExitedAt = &t
			}
		}
		if ended != nil {
			if t, err := time.Parse(time.RFC3339, *ended); err == nil {
				r.EndedAt = &t
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
