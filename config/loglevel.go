package config

import (
	"errors"

	"github.com/rs/zerolog"
)

// LogLevel is the configured verbosity.
type LogLevel zerolog.Level

// AsZeroLogLevel converts the level for zerolog.
func (l LogLevel) AsZeroLogLevel() zerolog.Level {
	return zerolog.Level(l)
}

// Decode implements envconfig.Decoder.
func (l *LogLevel) Decode(value string) error {
	if value == "" {
		return errors.New("log level must not be empty")
	}
	level, err := zerolog.ParseLevel(value)
	if err != nil {
		return err
	}
	*l = LogLevel(level)
	return nil
}
