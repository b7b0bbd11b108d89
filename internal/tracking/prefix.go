package tracking

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// detectGamePrefix looks for a compatibility-layer prefix root
// associated with info: first by inspecting WINEPREFIX/compat-data
// environment variables of ancestors and descendants, then by walking
// up from the process's working directory, validating any candidate
// against the marker files spec.md §6 names.
func detectGamePrefix(info *ProcessInfo) (string, bool) {
	if info == nil {
		return "", false
	}

	if candidate := envPrefixCandidate(info.Env); candidate != "" && validPrefix(candidate) {
		return candidate, true
	}

	if candidate := ancestorEnvPrefix(info.PID); candidate != "" && validPrefix(candidate) {
		return candidate, true
	}

	if candidate := workingDirWalkUp(info.PID); candidate != "" && validPrefix(candidate) {
		return candidate, true
	}

	return "", false
}

// envPrefixCandidate extracts a prefix root from a process's own
// environment snapshot.
func envPrefixCandidate(env map[string]string) string {
	if v, ok := env["WINEPREFIX"]; ok && v != "" {
		return v
	}
	for _, key := range []string{"STEAM_COMPAT_DATA_PATH", "COMPAT_DATA_PATH"} {
		if v, ok := env[key]; ok && v != "" {
			return filepath.Join(v, "pfx")
		}
	}
	return ""
}

// ancestorEnvPrefix inspects the environment of pid's ancestors and
// descendants for the same variables.
func ancestorEnvPrefix(pid int32) string {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ""
	}

	candidates := []*process.Process{p}
	if children, err := p.Children(); err == nil {
		candidates = append(candidates, children...)
	}
	cur := p
	for i := 0; i < 8; i++ {
		ppid, err := cur.Ppid()
		if err != nil || ppid <= 0 {
			break
		}
		parent, err := process.NewProcess(ppid)
		if err != nil {
			break
		}
		candidates = append(candidates, parent)
		cur = parent
	}

	for _, c := range candidates {
		envSlice, err := c.Environ()
		if err != nil {
			continue
		}
		env := envSliceToMap(envSlice)
		if candidate := envPrefixCandidate(env); candidate != "" {
			return candidate
		}
	}
	return ""
}

// workingDirWalkUp falls back to walking up from the process's
// current working directory looking for a drive_c sibling.
func workingDirWalkUp(pid int32) string {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ""
	}
	cwd, err := p.Cwd()
	if err != nil || cwd == "" {
		return ""
	}

	dir := cwd
	for i := 0; i < 12; i++ {
		if info, err := os.Stat(filepath.Join(dir, "drive_c")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// validPrefix confirms candidate looks like a real Wine/Proton prefix
// root: one of system.reg, user.reg, or a drive_c directory present.
func validPrefix(candidate string) bool {
	for _, marker := range []string{"system.reg", "user.reg", "drive_c"} {
		if _, err := os.Stat(filepath.Join(candidate, marker)); err == nil {
			return true
		}
	}
	return false
}

func envSliceToMap(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, kv := range env {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			out[kv[:idx]] = kv[idx+1:]
		}
	}
	return out
}
