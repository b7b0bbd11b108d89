package store

import "time"

// Game is one registered title's tracking configuration.
type Game struct {
	ID              string
	Name            string
	InstallDir      string
	ExecutableNames []string
	Launcher        string
	AutoUploadable  bool
	CloudProvider   string
	ActiveProfileID string
	// DetectedPrefix is the Wine/Proton prefix (or other virtualized
	// root) last observed for this install, carried forward so Upload
	// and Compare can expand %PREFIX%-keyed portable paths correctly.
	DetectedPrefix string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile is one save-data profile belonging to a Game.
type Profile struct {
	ID           string
	GameID       string
	Name         string
	BackupSuffix string
	IsActive     bool
	CreatedAt    time.Time
}

// SessionRecord is one completed (or in-progress) capture session,
// persisted for history/diagnostics.
type SessionRecord struct {
	ID               int64
	GameID           string
	ProfileID        string
	StartedAt        time.Time
	ProcessExitedAt  *time.Time
	EndedAt          *time.Time
	PlaytimeSeconds  int64
	FilesTracked     int
	CumulativeBytes  int64
	CapBreached      bool
	UploadCommitted  bool
}
