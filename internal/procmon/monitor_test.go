package procmon

import "testing"

func TestMonitor_ParentGating(t *testing.T) {
	m := New(`C:\Games\MyGame`, nil)
	m.Initialize(100)

	// Child of a tracked parent is admitted.
	m.HandleNewProcess(200, 100)
	if !m.IsTracked(200) {
		t.Fatal("expected child of tracked parent to be tracked")
	}

	// Child of an untracked parent is rejected.
	m.HandleNewProcess(300, 999)
	if m.IsTracked(300) {
		t.Fatal("expected child of untracked parent to be rejected")
	}
}

func TestMonitor_ProcessExit(t *testing.T) {
	m := New("", nil)
	m.Initialize(1)
	m.HandleProcessExit(1)
	if m.IsTracked(1) {
		t.Fatal("expected exited process to be removed")
	}
}

func TestMonitor_LauncherUserdataException(t *testing.T) {
	m := New("", nil)
	m.MarkLauncherRoot(42)

	if m.ShouldAdmitWrite(42, `C:\Steam\userdata\1234\remote\save.dat`) != true {
		t.Fatal("expected launcher write to userdata/remote to be admitted")
	}
	if m.ShouldAdmitWrite(42, `C:\Steam\logs\app.log`) != false {
		t.Fatal("expected launcher write outside userdata/remote to be rejected")
	}
	if m.ShouldAdmitWrite(999, `C:\Steam\userdata\1234\remote\save.dat`) != false {
		t.Fatal("expected non-tracked non-launcher pid to be rejected")
	}
}
