package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkReceivesInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacepilot.log")
	log, err := New("prod", path)
	require.NoError(t, err)

	log.With("user_id", "u-1").Info("plan built", "scheduled", 3)
	log.Debug("not written to file")
	log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"plan built"`)
	assert.Contains(t, string(raw), `"user_id":"u-1"`)
	assert.NotContains(t, string(raw), "not written")
}

func TestNopDoesNotPanic(t *testing.T) {
	l := Nop()
	l.Warn("ignored", "k", "v")
	l.Error("ignored")
}
