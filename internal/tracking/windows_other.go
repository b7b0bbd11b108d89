//go:build !windows

package tracking

import "go.uber.org/zap"

// newWindowsEngine is unreachable outside GOOS=windows; tracking.New
// only calls it when runtime.GOOS == "windows". Kept so the package
// builds uniformly across platforms.
func newWindowsEngine(logger *zap.Logger) Engine {
	return NewCompatEngine(logger)
}
