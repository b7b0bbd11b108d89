package tracking

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// detectLauncher scans the ancestor and descendant command lines of
// info's process for known launcher signatures, per spec.md §4.3.
func detectLauncher(info *ProcessInfo) Launcher {
	if info == nil {
		return LauncherUnknown
	}

	cmdlines := commandLinesAround(info.PID)
	cmdlines = append(cmdlines, strings.Join(info.Args, " "))

	joined := strings.ToLower(strings.Join(cmdlines, "\n"))

	switch {
	case strings.Contains(joined, "steamapps") || strings.Contains(joined, "proton"):
		return LauncherSteamProton
	case strings.Contains(joined, "lutris"):
		return LauncherLutris
	case strings.Contains(joined, "heroic"):
		return LauncherHeroic
	case strings.Contains(joined, "bottles"):
		return LauncherBottles
	case strings.Contains(joined, "wine"):
		return LauncherWine
	default:
		return LauncherUnknown
	}
}

// commandLinesAround collects the command lines of pid's ancestors and
// direct descendants, best-effort.
func commandLinesAround(pid int32) []string {
	var out []string

	p, err := process.NewProcess(pid)
	if err != nil {
		return out
	}

	cur := p
	for i := 0; i < 8; i++ {
		if cmdline, err := cur.Cmdline(); err == nil {
			out = append(out, cmdline)
		}
		ppid, err := cur.Ppid()
		if err != nil || ppid <= 0 {
			break
		}
		parent, err := process.NewProcess(ppid)
		if err != nil {
			break
		}
		cur = parent
	}

	if children, err := p.Children(); err == nil {
		for _, child := range children {
			if cmdline, err := child.Cmdline(); err == nil {
				out = append(out, cmdline)
			}
		}
	}

	return out
}
