package tailwatch

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"chronoscope/internal/core/domain"
)

// Progress lines look like:
//
//	[2026-02-09T10:00:00Z] [researcher] Phase 2/6: discovery -- scanned 40 files #feature=auth #urgent
//
// Anything that does not match is ignored; the progress log is shared with
// humans and carries prose between the structured lines.
var progressLinePattern = regexp.MustCompile(
	`^\[([^\]]+)\]\s+\[([^\]]+)\]\s+Phase\s+(\d+)/(\d+):\s+(\S+)\s+--\s+(.+)$`)

// ParseLine parses one progress-log line into a phase-transition event.
// The second result is false for lines that do not match the format.
func ParseLine(line string) (domain.Event, bool) {
	match := progressLinePattern.FindStringSubmatch(strings.TrimSpace(line))
	if match == nil {
		return domain.Event{}, false
	}

	phase, _ := strconv.Atoi(match[3])
	total, _ := strconv.Atoi(match[4])
	labels, summary := splitLabels(match[6])

	return domain.Event{
		Type:        domain.EventPhaseTransition,
		AgentType:   match[2],
		Timestamp:   parseTimestamp(match[1]),
		Phase:       phase,
		TotalPhases: total,
		PhaseName:   match[5],
		Message:     summary,
		Labels:      labels,
	}, true
}

// splitLabels separates trailing #tag and #key=value tokens from the summary
// text. "#tag" becomes {"tag": ""}; "#key=value" becomes {"key": "value"}.
func splitLabels(rest string) (map[string]string, string) {
	var labels map[string]string
	var summary []string

	for _, word := range strings.Fields(rest) {
		if !strings.HasPrefix(word, "#") {
			summary = append(summary, word)
			continue
		}
		if labels == nil {
			labels = make(map[string]string)
		}
		tag := strings.TrimPrefix(word, "#")
		key, value, _ := strings.Cut(tag, "=")
		labels[key] = value
	}
	return labels, strings.Join(summary, " ")
}

// parseTimestamp accepts RFC 3339 with or without sub-second precision. A
// zero time is returned on failure so the store stamps the event at
// ingestion instead.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
