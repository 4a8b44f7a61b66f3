package accesslog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLineDownload(t *testing.T) {
	line := []byte(`{"remote_addr":"1.2.3.4","time":"2026-07-31T10:00:00Z","method":"GET","path":"/download-file/deadbeef/a.txt","status":200,"bytes_sent":512,"body_bytes_sent":500,"user_agent":"curl","request_time":0.01,"request_id":"r1"}`)
	p, err := ParseLine(line)
	require.NoError(t, err)
	require.Equal(t, IntentDownload, p.Intent)
	require.Equal(t, "deadbeef", p.TunnelID)
	require.EqualValues(t, 500, p.Event.BodyBytesSent)
}

func TestParseLineCourtesy(t *testing.T) {
	line := []byte(`{"remote_addr":"1.2.3.4","time":"2026-07-31T10:00:00Z","method":"GET","path":"/files/deadbeef/a.txt","status":200,"bytes_sent":100,"body_bytes_sent":100,"request_id":"r2"}`)
	p, err := ParseLine(line)
	require.NoError(t, err)
	require.Equal(t, IntentCourtesy, p.Intent)
}

func TestParseLineUnrelatedPath(t *testing.T) {
	line := []byte(`{"remote_addr":"1.2.3.4","time":"2026-07-31T10:00:00Z","method":"GET","path":"/health","status":200,"body_bytes_sent":2,"request_id":"r3"}`)
	p, err := ParseLine(line)
	require.NoError(t, err)
	require.Equal(t, IntentNone, p.Intent)
}

func TestParseLineMalformed(t *testing.T) {
	_, err := ParseLine([]byte(`not json`))
	require.ErrorIs(t, err, ErrUnparseable)
}

func TestParseLineBadTimestamp(t *testing.T) {
	line := []byte(`{"path":"/files/deadbeef/a.txt","status":200,"time":"not-a-time"}`)
	_, err := ParseLine(line)
	require.ErrorIs(t, err, ErrUnparseable)
}
