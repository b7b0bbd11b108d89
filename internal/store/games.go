package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("not found")

// UpsertGame inserts or replaces a game's registration.
func (db *DB) UpsertGame(g Game) error {
	execNames, err := json.Marshal(g.ExecutableNames)
	if err != nil {
		return fmt.Errorf("marshal executable names: %w", err)
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	_, err = db.conn.Exec(`
		INSERT INTO games (id, name, install_dir, executable_names, launcher, auto_uploadable, cloud_provider, active_profile_id, detected_prefix, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, install_dir=excluded.install_dir, executable_names=excluded.executable_names,
			launcher=excluded.launcher, auto_uploadable=excluded.auto_uploadable, cloud_provider=excluded.cloud_provider,
			active_profile_id=excluded.active_profile_id, detected_prefix=excluded.detected_prefix, updated_at=excluded.updated_at`,
		g.ID, g.Name, g.InstallDir, string(execNames), g.Launcher, g.AutoUploadable, g.CloudProvider,
		g.ActiveProfileID, g.DetectedPrefix, g.CreatedAt.Format(time.RFC3339), g.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", g.ID, err)
	}
	return nil
}

// GetGame fetches a game by id.
func (db *DB) GetGame(id string) (*Game, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, install_dir, executable_names, launcher, auto_uploadable, cloud_provider, active_profile_id, detected_prefix, created_at, updated_at
		FROM games WHERE id = ?`, id)
	return scanGame(row)
}

// ListGames returns every registered game.
func (db *DB) ListGames() ([]Game, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, install_dir, executable_names, launcher, auto_uploadable, cloud_provider, active_profile_id, detected_prefix, created_at, updated_at
		FROM games ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// SetActiveProfile updates a game's active-profile pointer.
func (db *DB) SetActiveProfile(gameID, profileID string) error {
	res, err := db.conn.Exec(`UPDATE games SET active_profile_id = ?, updated_at = ? WHERE id = ?`,
		profileID, time.Now().UTC().Format(time.RFC3339), gameID)
	if err != nil {
		return fmt.Errorf("set active profile for %s: %w", gameID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("set active profile for %s: %w", gameID, ErrNotFound)
	}
	return nil
}

// SetDetectedPrefix records the Wine/Proton prefix observed for a
// game's install during its most recent capture session.
func (db *DB) SetDetectedPrefix(gameID, prefix string) error {
	res, err := db.conn.Exec(`UPDATE games SET detected_prefix = ?, updated_at = ? WHERE id = ?`,
		prefix, time.Now().UTC().Format(time.RFC3339), gameID)
	if err != nil {
		return fmt.Errorf("set detected prefix for %s: %w", gameID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("set detected prefix for %s: %w", gameID, ErrNotFound)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanGame(row scannable) (*Game, error) {
	var g Game
	var execNamesJSON, createdAt, updatedAt string
	var cloudProvider sql.NullString

	if err := row.Scan(&g.ID, &g.Name, &g.InstallDir, &execNamesJSON, &g.Launcher,
		&g.AutoUploadable, &cloudProvider, &g.ActiveProfileID, &g.DetectedPrefix, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan game row: %w", err)
	}

	if err := json.Unmarshal([]byte(execNamesJSON), &g.ExecutableNames); err != nil {
		return nil, fmt.Errorf("unmarshal executable names: %w", err)
	}
	g.CloudProvider = cloudProvider.String
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	g.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &g, nil
}
