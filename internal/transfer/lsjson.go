package transfer

import (
	"encoding/json"
	"fmt"
	"time"
)

// lsjsonRow mirrors the subset of rclone's lsjson output fields this
// driver depends on.
type lsjsonRow struct {
	Path    string    `json:"Path"`
	Size    int64     `json:"Size"`
	ModTime time.Time `json:"ModTime"`
	IsDir   bool      `json:"IsDir"`
}

func parseLsJSON(data []byte) ([]ListEntry, error) {
	var rows []lsjsonRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse lsjson output: %w", err)
	}

	out := make([]ListEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, ListEntry{
			Path:    r.Path,
			Size:    r.Size,
			ModTime: r.ModTime,
			IsDir:   r.IsDir,
		})
	}
	return out, nil
}
