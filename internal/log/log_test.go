package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "debug", FormatJSON))
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})
	return &buf
}

func lines(buf *bytes.Buffer) []map[string]interface{} {
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if json.Unmarshal([]byte(line), &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestSetupWriter(t *testing.T) {
	buf := captureJSON(t)
	log.Info().Str("symbol", "AAPL").Msg("hello")

	entries := lines(buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "AAPL", entries[0]["symbol"])
	assert.Equal(t, "hello", entries[0]["message"])

	assert.Error(t, SetupWriter(&bytes.Buffer{}, "loud", FormatJSON))
	assert.Error(t, SetupWriter(&bytes.Buffer{}, "info", Format("xml")))
}

func TestSetupWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "info", FormatConsole))
	log.Info().Msg("console line")
	assert.Contains(t, buf.String(), "console line")
	assert.False(t, strings.HasPrefix(buf.String(), "{"))
}

func TestProgress_LogsEveryN(t *testing.T) {
	buf := captureJSON(t)

	p := NewProgress("scan", 45, 20)
	for i := 0; i < 44; i++ {
		p.Increment()
	}
	p.Failure()
	p.Finish("Scan complete")

	var progress, summary int
	for _, e := range lines(buf) {
		switch e["message"] {
		case "Progress":
			progress++
		case "Scan complete":
			summary++
			assert.Equal(t, 45.0, e["processed"])
			assert.Equal(t, 1.0, e["failed"])
		}
	}
	assert.Equal(t, 2, progress)
	assert.Equal(t, 1, summary)
	assert.Equal(t, 45, p.Current())
}

func TestStepTimer(t *testing.T) {
	captureJSON(t)

	timer := NewStepTimer("aggregate")
	timer.Start("collect")
	timer.Start("clean")
	steps := timer.Finish()

	require.Len(t, steps, 2)
	assert.Equal(t, "collect", steps[0].Step)
	assert.Equal(t, "clean", steps[1].Step)
}
