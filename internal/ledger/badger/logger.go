package badger

import (
	"strings"

	"github.com/rs/zerolog"
)

// badgerLogger routes Badger's printf-style logging into zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.log.Info().Msgf(strings.TrimSpace(format), args...)
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.log.Debug().Msgf(strings.TrimSpace(format), args...)
}
