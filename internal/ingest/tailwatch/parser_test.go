package tailwatch

import (
	"testing"
	"time"

	"chronoscope/internal/core/domain"
)

func TestParseLine(t *testing.T) {
	line := "[2026-02-09T10:00:00Z] [researcher] Phase 2/6: discovery -- scanned 40 files #feature=auth #urgent"

	ev, ok := ParseLine(line)
	if !ok {
		t.Fatal("line did not parse")
	}
	if ev.Type != domain.EventPhaseTransition {
		t.Errorf("type = %s", ev.Type)
	}
	if ev.AgentType != "researcher" {
		t.Errorf("agent type = %q", ev.AgentType)
	}
	if ev.Phase != 2 || ev.TotalPhases != 6 {
		t.Errorf("phase = %d/%d, want 2/6", ev.Phase, ev.TotalPhases)
	}
	if ev.PhaseName != "discovery" {
		t.Errorf("phase name = %q", ev.PhaseName)
	}
	if ev.Message != "scanned 40 files" {
		t.Errorf("summary = %q", ev.Message)
	}
	if ev.Labels["feature"] != "auth" {
		t.Errorf("labels = %v, want feature=auth", ev.Labels)
	}
	if v, ok := ev.Labels["urgent"]; !ok || v != "" {
		t.Errorf("bare tag should map to empty value, got %v", ev.Labels)
	}

	want := time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestParseLineRejectsProse(t *testing.T) {
	lines := []string{
		"",
		"just some prose in the progress log",
		"## Status update",
		"[2026-02-09T10:00:00Z] [researcher] finished early",
		"[ts] Phase 1/2: setup -- missing the agent bracket",
	}
	for _, line := range lines {
		if _, ok := ParseLine(line); ok {
			t.Errorf("line %q should not parse", line)
		}
	}
}

func TestParseLineWithoutLabels(t *testing.T) {
	ev, ok := ParseLine("[2026-02-09T10:00:00Z] [coder] Phase 1/3: setup -- wrote scaffolding")
	if !ok {
		t.Fatal("line did not parse")
	}
	if ev.Labels != nil {
		t.Errorf("labels = %v, want nil", ev.Labels)
	}
	if ev.Message != "wrote scaffolding" {
		t.Errorf("summary = %q", ev.Message)
	}
}

func TestParseLineToleratesBadTimestamp(t *testing.T) {
	ev, ok := ParseLine("[yesterday afternoon] [coder] Phase 1/3: setup -- started")
	if !ok {
		t.Fatal("line did not parse")
	}
	if !ev.Timestamp.IsZero() {
		t.Errorf("unparseable timestamp should yield zero time, got %v", ev.Timestamp)
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	for _, s := range []string{
		"2026-02-09T10:00:00Z",
		"2026-02-09T10:00:00.123456Z",
		"2026-02-09T10:00:00+02:00",
		"2026-02-09T10:00:00",
	} {
		if parseTimestamp(s).IsZero() {
			t.Errorf("timestamp %q should parse", s)
		}
	}
}
