package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertProfile inserts or replaces a profile record.
func (db *DB) UpsertProfile(p Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO profiles (id, game_id, name, backup_suffix, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, game_id) DO UPDATE SET
			name=excluded.name, backup_suffix=excluded.backup_suffix, is_active=excluded.is_active`,
		p.ID, p.GameID, p.Name, p.BackupSuffix, p.IsActive, p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert profile %s/%s: %w", p.GameID, p.ID, err)
	}
	return nil
}

// ListProfiles returns every profile for a game.
func (db *DB) ListProfiles(gameID string) ([]Profile, error) {
	rows, err := db.conn.Query(`
		SELECT id, game_id, name, backup_suffix, is_active, created_at
		FROM profiles WHERE game_id = ? ORDER BY created_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list profiles for %s: %w", gameID, err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		var createdAt string
		if err := rows.Scan(&p.ID, &p.GameID, &p.Name, &p.BackupSuffix, &p.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProfile fetches one profile by (gameID, profileID).
func (db *DB) GetProfile(gameID, profileID string) (*Profile, error) {
	row := db.conn.QueryRow(`
		SELECT id, game_id, name, backup_suffix, is_active, created_at
		FROM profiles WHERE game_id = ? AND id = ?`, gameID, profileID)

	var p Profile
	var createdAt string
	if err := row.Scan(&p.ID, &p.GameID, &p.Name, &p.BackupSuffix, &p.IsActive, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile %s/%s: %w", gameID, profileID, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

// MarkProfileActive flips is_active on target and clears it on every
// sibling profile of the same game, within one transaction.
func (db *DB) MarkProfileActive(gameID, profileID string) error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE profiles SET is_active = 0 WHERE game_id = ?`, gameID); err != nil {
			return fmt.Errorf("clear active flags: %w", err)
		}
		res, err := tx.Exec(`UPDATE profiles SET is_active = 1 WHERE game_id = ? AND id = ?`, gameID, profileID)
		if err != nil {
			return fmt.Errorf("set active flag: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("mark profile active %s/%s: %w", gameID, profileID, ErrNotFound)
		}
		if _, err := tx.Exec(`UPDATE games SET active_profile_id = ?, updated_at = ? WHERE id = ?`,
			profileID, time.Now().UTC().Format(time.RFC3339), gameID); err != nil {
			return fmt.Errorf("update game active profile pointer: %w", err)
		}
		return nil
	})
}
