package flags

import "testing"

func TestNewSetDefaultsOn(t *testing.T) {
	set := NewSet()
	for _, f := range All {
		if !set.Enabled(f) {
			t.Errorf("Enabled(%s) = false, want true", f)
		}
	}
}

func TestNewSetDisables(t *testing.T) {
	set := NewSet(SharedLinks, OCRQueue)
	if set.Enabled(SharedLinks) {
		t.Error("shared_links should be disabled")
	}
	if set.Enabled(OCRQueue) {
		t.Error("ocr_queue should be disabled")
	}
	if !set.Enabled(Workflow) {
		t.Error("workflow should stay enabled")
	}
}

func TestUnknownFlagIsOff(t *testing.T) {
	set := NewSet()
	if set.Enabled(Flag("made_up")) {
		t.Error("unknown flag should be off")
	}
}

func TestSetEnabledNotifiesListeners(t *testing.T) {
	set := NewSet()

	var gotFlag Flag
	var gotEnabled bool
	calls := 0
	set.Subscribe(func(flag Flag, enabled bool) {
		gotFlag = flag
		gotEnabled = enabled
		calls++
	})

	set.SetEnabled(Workflow, false)
	if calls != 1 {
		t.Fatalf("listener calls = %d, want 1", calls)
	}
	if gotFlag != Workflow || gotEnabled {
		t.Fatalf("listener got (%s, %v), want (workflow, false)", gotFlag, gotEnabled)
	}

	// No-op change does not notify.
	set.SetEnabled(Workflow, false)
	if calls != 1 {
		t.Fatalf("listener calls after no-op = %d, want 1", calls)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	set := NewSet()

	calls := 0
	unsubscribe := set.Subscribe(func(Flag, bool) { calls++ })
	set.SetEnabled(AuditLogs, false)
	unsubscribe()
	set.SetEnabled(AuditLogs, true)

	if calls != 1 {
		t.Fatalf("listener calls = %d, want 1", calls)
	}
}

func TestSetsAreIndependent(t *testing.T) {
	a := NewSet()
	b := NewSet()

	a.SetEnabled(SemanticSearch, false)
	if !b.Enabled(SemanticSearch) {
		t.Error("disabling a flag in one set must not affect another")
	}
}

func TestSnapshot(t *testing.T) {
	set := NewSet(AuditLogs)
	snap := set.Snapshot()
	if len(snap) != len(All) {
		t.Fatalf("snapshot size = %d, want %d", len(snap), len(All))
	}
	if snap[AuditLogs] {
		t.Error("snapshot should reflect disabled audit_logs")
	}

	// Mutating the snapshot must not leak back.
	snap[Workflow] = false
	if !set.Enabled(Workflow) {
		t.Error("snapshot mutation leaked into the set")
	}
}
