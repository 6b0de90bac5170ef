// Package config loads the server configuration from the environment and
// optional dotenv files.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/AsterZephyr/rotascope/capture"
	"github.com/AsterZephyr/rotascope/config/mode"
	"github.com/AsterZephyr/rotascope/display"
	"github.com/AsterZephyr/rotascope/encode"
	"github.com/AsterZephyr/rotascope/message"
	"github.com/AsterZephyr/rotascope/wire"
)

const prefix = "rotascope"

var files = []string{"rotascope.config.development.local", "rotascope.config.development", "rotascope.config.local", "rotascope.config", "/etc/rotascope/server.config"}

// Config holds the server configuration.
type Config struct {
	LogLevel LogLevel `default:"info" split_words:"true"`

	ServerAddress string `default:":5050" split_words:"true"`
	// TCPAddress is the listen address of the length-framed transport. Empty
	// disables it.
	TCPAddress  string `default:":5051" split_words:"true"`
	TLSCertFile string `split_words:"true"`
	TLSKeyFile  string `split_words:"true"`

	CorsAllowedOrigins []string `split_words:"true"`
	Prometheus         bool     `split_words:"true"`
	TrustProxyHeaders  bool     `split_words:"true"`

	MaxFrameSize      uint32        `default:"134217728" split_words:"true"`
	SessionBuffer     int           `default:"32" split_words:"true"`
	HeartbeatInterval time.Duration `default:"5s" split_words:"true"`
	HeartbeatTimeout  time.Duration `default:"10s" split_words:"true"`
	WriteTimeout      time.Duration `default:"10s" split_words:"true"`

	FrameRate     int    `default:"30" split_words:"true"`
	Encoder       string `default:"jpeg"`
	Quality       int    `default:"70"`
	MessageFormat string `default:"json" split_words:"true"`

	DisplayBackend     string      `default:"emulated" split_words:"true"`
	DisplayCount       uint8       `default:"3" split_words:"true"`
	DisplayResolutions Resolutions `default:"1920x1080" split_words:"true"`
	DisplayLayoutFile  string      `split_words:"true"`
	CaptureBackend     string      `default:"pattern" split_words:"true"`

	RotationThreshold float32 `default:"30" split_words:"true"`

	CheckOrigin func(string) bool `ignored:"true" json:"-"`
}

// FutureLog is a log entry that is emitted once the logger is initialized.
type FutureLog struct {
	Level zerolog.Level
	Msg   string
}

// Get loads the configuration. Problems are returned as log entries, a fatal
// entry means the configuration is unusable.
func Get() (Config, []FutureLog) {
	var logs []FutureLog
	dir, _ := os.Getwd()
	for _, file := range getFiles() {
		_, fileErr := os.Stat(file)
		if fileErr == nil {
			if err := godotenv.Load(file); err != nil {
				logs = append(logs, futureFatal(fmt.Sprintf("cannot load file %s: %s", file, err)))
			} else {
				logs = append(logs, FutureLog{
					Level: zerolog.DebugLevel,
					Msg:   fmt.Sprintf("Loading file %s", file),
				})
			}
		} else if os.IsNotExist(fileErr) {
			continue
		} else {
			logs = append(logs, FutureLog{
				Level: zerolog.WarnLevel,
				Msg:   fmt.Sprintf("cannot read file %s because %s", file, fileErr),
			})
		}
	}

	config := Config{}
	if err := envconfig.Process(prefix, &config); err != nil {
		logs = append(logs, futureFatal(fmt.Sprintf("cannot parse env params: %s", err)))
		return config, logs
	}

	logs = append(logs, config.validate()...)

	compiledAllowedOrigins := compileOrigins(config.CorsAllowedOrigins)
	config.CheckOrigin = func(origin string) bool {
		for _, compiledOrigin := range compiledAllowedOrigins {
			if compiledOrigin.MatchString(strings.ToLower(origin)) {
				return true
			}
		}
		return false
	}

	logs = append(logs, FutureLog{
		Level: zerolog.DebugLevel,
		Msg:   fmt.Sprintf("Using working directory %s", dir),
	})
	return config, logs
}

func (c *Config) validate() []FutureLog {
	var logs []FutureLog
	fatal := func(format string, args ...any) {
		logs = append(logs, futureFatal(fmt.Sprintf(format, args...)))
	}

	if c.TLSCertFile != "" || c.TLSKeyFile != "" {
		if c.TLSCertFile == "" || c.TLSKeyFile == "" {
			fatal("ROTASCOPE_TLS_CERT_FILE and ROTASCOPE_TLS_KEY_FILE must be set together")
		}
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = wire.DefaultMaxFrameSize
		logs = append(logs, FutureLog{
			Level: zerolog.WarnLevel,
			Msg:   fmt.Sprintf("ROTASCOPE_MAX_FRAME_SIZE is 0, using %d", wire.DefaultMaxFrameSize),
		})
	}
	if c.SessionBuffer < 1 {
		fatal("ROTASCOPE_SESSION_BUFFER must be at least 1, got %d", c.SessionBuffer)
	}
	if c.HeartbeatInterval <= 0 {
		fatal("ROTASCOPE_HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}
	if c.HeartbeatTimeout < c.HeartbeatInterval {
		fatal("ROTASCOPE_HEARTBEAT_TIMEOUT (%s) must not be shorter than ROTASCOPE_HEARTBEAT_INTERVAL (%s)", c.HeartbeatTimeout, c.HeartbeatInterval)
	}
	if c.FrameRate < 0 {
		fatal("ROTASCOPE_FRAME_RATE must not be negative, got %d", c.FrameRate)
	}
	if c.FrameRate == 0 {
		logs = append(logs, FutureLog{Level: zerolog.InfoLevel, Msg: "Frame rate is uncapped"})
	}
	if c.Quality < 1 || c.Quality > 100 {
		fatal("ROTASCOPE_QUALITY must be between 1 and 100, got %d", c.Quality)
	}
	if !oneOf(c.Encoder, encode.NameJPEG, encode.NameZstd, encode.NameLZ4) {
		fatal("invalid ROTASCOPE_ENCODER %q, must be one of %s, %s, %s", c.Encoder, encode.NameJPEG, encode.NameZstd, encode.NameLZ4)
	}
	if _, err := message.FormatByName(c.MessageFormat); err != nil {
		fatal("invalid ROTASCOPE_MESSAGE_FORMAT: %s", err)
	}
	if !oneOf(c.DisplayBackend, display.BackendEmulated, display.BackendScreen) {
		fatal("invalid ROTASCOPE_DISPLAY_BACKEND %q, must be %s or %s", c.DisplayBackend, display.BackendEmulated, display.BackendScreen)
	}
	if !oneOf(c.CaptureBackend, capture.BackendPattern, capture.BackendScreen) {
		fatal("invalid ROTASCOPE_CAPTURE_BACKEND %q, must be %s or %s", c.CaptureBackend, capture.BackendPattern, capture.BackendScreen)
	}
	if c.DisplayBackend == display.BackendEmulated && c.DisplayLayoutFile == "" {
		if c.DisplayCount == 0 {
			fatal("ROTASCOPE_DISPLAY_COUNT must be at least 1")
		}
		if n := len(c.DisplayResolutions); n != 1 && n != int(c.DisplayCount) {
			fatal("ROTASCOPE_DISPLAY_RESOLUTIONS has %d entries, expected 1 or %d", n, c.DisplayCount)
		}
	}
	if c.RotationThreshold <= 0 {
		fatal("ROTASCOPE_ROTATION_THRESHOLD must be positive, got %v", c.RotationThreshold)
	}
	return logs
}

// Format returns the configured message format.
func (c Config) Format() message.Format {
	format, err := message.FormatByName(c.MessageFormat)
	if err != nil {
		return message.JSON
	}
	return format
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func compileOrigins(origins []string) []*regexp.Regexp {
	var compiled []*regexp.Regexp
	for _, origin := range origins {
		compiled = append(compiled, regexp.MustCompile("^"+regexp.QuoteMeta(strings.ToLower(origin))+"$"))
	}
	return compiled
}

func getFiles() []string {
	if mode.Get() == mode.Prod {
		var result []string
		for _, file := range files {
			if !strings.Contains(file, ".development") {
				result = append(result, file)
			}
		}
		return result
	}
	return files
}

func futureFatal(msg string) FutureLog {
	return FutureLog{
		Level: zerolog.FatalLevel,
		Msg:   msg,
	}
}

// Resolutions decodes a comma separated list like "1920x1080,1280x720".
type Resolutions []message.Resolution

// Decode implements envconfig.Decoder.
func (r *Resolutions) Decode(value string) error {
	var result Resolutions
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var width, height uint32
		if _, err := fmt.Sscanf(strings.ToLower(part), "%dx%d", &width, &height); err != nil {
			return fmt.Errorf("invalid resolution %q, expected WIDTHxHEIGHT", part)
		}
		if width == 0 || height == 0 {
			return fmt.Errorf("invalid resolution %q, width and height must be positive", part)
		}
		result = append(result, message.Resolution{width, height})
	}
	if len(result) == 0 {
		return errors.New("at least one resolution is required")
	}
	*r = result
	return nil
}
