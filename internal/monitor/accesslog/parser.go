// Package accesslog parses the static file server's access-log lines
// into AccessLogEvents and attributes them to a tunnel ID, kept
// independent of the tailer so both halves can be tested in
// isolation, mirroring a common separation of wire parsing from
// orchestration (internal/tunnel/protocol.go vs internal/tunnel/server.go).
package accesslog

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dropwire/dropwire/internal/models"
)

// ErrUnparseable is returned for lines that do not decode into the
// expected structured-log shape. Counted and discarded by the
// tailer, never surfaced to callers (LogUnparseable).
var ErrUnparseable = errors.New("accesslog: unparseable line")

// rawLine is the JSON shape one access-log line is expected to take,
// per the access log field list: remote address, timestamp,
// method+path+query, status code, bytes sent (total and body), user
// agent, request time, request ID.
type rawLine struct {
	RemoteAddr    string  `json:"remote_addr"`
	Time          string  `json:"time"`
	Method        string  `json:"method"`
	Path          string  `json:"path"`
	Query         string  `json:"query"`
	Status        int     `json:"status"`
	BytesSent     int64   `json:"bytes_sent"`
	BodyBytesSent int64   `json:"body_bytes_sent"`
	UserAgent     string  `json:"user_agent"`
	RequestTime   float64 `json:"request_time"`
	RequestID     string  `json:"request_id"`
}

// pathPattern matches the two routes the static server exposes per
// two request path shapes: /files/<id>/<name> (courtesy page) and
// /download-file/<id>/<name> (attachment download).
var pathPattern = regexp.MustCompile(`^/(files|download-file)/([a-f0-9]{8})/`)

// Intent classifies which route a log line hit.
type Intent int

const (
	// IntentNone means the line's path did not match either route.
	IntentNone Intent = iota
	// IntentCourtesy is the /files/<id>/... courtesy page; per
	// these MUST NOT contribute to bytes_served.
	IntentCourtesy
	// IntentDownload is the /download-file/<id>/... attachment route.
	IntentDownload
)

// Parsed is one successfully parsed line, with its tunnel attribution
// already extracted.
type Parsed struct {
	Event    models.AccessLogEvent
	TunnelID string
	Intent   Intent
}

// ParseLine parses one access-log line into a Parsed event. Lines
// whose path does not match either known route return Intent ==
// IntentNone with no error — they are simply not relevant, not
// malformed.
func ParseLine(line []byte) (Parsed, error) {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return Parsed{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if raw.Path == "" || raw.Status == 0 {
		return Parsed{}, ErrUnparseable
	}

	ts, err := time.Parse(time.RFC3339, raw.Time)
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: bad timestamp: %v", ErrUnparseable, err)
	}

	event := models.AccessLogEvent{
		Timestamp:     ts,
		Path:          raw.Path,
		StatusCode:    raw.Status,
		BodyBytesSent: raw.BodyBytesSent,
		RequestID:     raw.RequestID,
		RemoteAddr:    raw.RemoteAddr,
	}

	match := pathPattern.FindStringSubmatch(raw.Path)
	if match == nil {
		return Parsed{Event: event, Intent: IntentNone}, nil
	}

	intent := IntentCourtesy
	if match[1] == "download-file" {
		intent = IntentDownload
	}

	return Parsed{Event: event, TunnelID: match[2], Intent: intent}, nil
}
