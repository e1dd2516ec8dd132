package runner

import (
	"io"
	"os"

	"github.com/estafette/estafette-ci-orchestrator/config"
	foundation "github.com/estafette/estafette-foundation"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogging points the global zerolog logger at stderr, as colored console output or as json carrying the
// application fields
func InitLogging(applicationInfo foundation.ApplicationInfo, logConfig config.LogConfig) error {
	return initLogging(os.Stderr, applicationInfo, logConfig)
}

func initLogging(w io.Writer, applicationInfo foundation.ApplicationInfo, logConfig config.LogConfig) error {

	level, err := zerolog.ParseLevel(logConfig.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	switch logConfig.Format {
	case "json":
		log.Logger = zerolog.New(w).With().
			Timestamp().
			Str("app", applicationInfo.App).
			Str("version", applicationInfo.Version).
			Logger()
	default:
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}

	return nil
}
