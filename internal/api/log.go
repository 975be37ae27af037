package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"lesstraveled/pkg/logging"
)

// Matches key=value or key="value with spaces" in slog text output.
var logRegex = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// Attributes that identify the emitter rather than the event.
var hiddenLogKeys = map[string]bool{
	"time":       true,
	"level":      true,
	"msg":        true,
	"session_id": true,
	"path":       true,
}

// handleLatestLog returns the last captured log line in a compact form.
// GET /api/log/latest
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	line := logging.GlobalLogCapture.LastLine()
	writeJSON(w, http.StatusOK, map[string]string{"log": formatLogLine(line)})
}

// formatLogLine renders "HH:MM:SS [component] msg (k=v, ...)". Lines that do
// not look like slog text output are returned unchanged.
func formatLogLine(raw string) string {
	matches := logRegex.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return raw
	}

	var msg, clock, component string
	var params []string
	for _, m := range matches {
		key, val := m[1], m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
				clock = t.Format("15:04:05")
			}
		case "msg":
			msg = val
		case "component":
			component = val
		}
		if hiddenLogKeys[key] || key == "component" {
			continue
		}
		params = append(params, fmt.Sprintf("%s=%s", key, val))
	}

	if msg == "" {
		slog.Debug("Unstructured log line", "len", len(raw))
		return raw
	}
	sort.Strings(params)

	var b strings.Builder
	if clock != "" {
		b.WriteString(clock + " ")
	}
	if component != "" {
		b.WriteString("[" + component + "] ")
	}
	b.WriteString(msg)
	if len(params) > 0 {
		b.WriteString(" (" + strings.Join(params, ", ") + ")")
	}
	return b.String()
}
