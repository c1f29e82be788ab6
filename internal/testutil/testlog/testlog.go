package testlog

import (
	"testing"

	"github.com/rs/zerolog"
)

// New returns a debug-level logger that routes through t.Log, so output is
// attributed to the test that produced it.
func New(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).With().
		Str("test", t.Name()).Logger()
}
