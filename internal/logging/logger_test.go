package logging_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/taskctl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	t.Run("json output at requested level", func(t *testing.T) {
		var buf bytes.Buffer
		logging.SetupWriter(&buf, "warn", false)

		log.Info().Msg("hidden")
		log.Warn().Str("provider", "github").Msg("shown")

		out := buf.String()
		require.NotContains(t, out, "hidden")
		require.Contains(t, out, `"provider":"github"`)
		require.Contains(t, out, `"message":"shown"`)
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		logging.SetupWriter(&buf, "loud", false)
		require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	})
}
