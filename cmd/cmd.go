package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/AsterZephyr/rotascope/config"
	"github.com/AsterZephyr/rotascope/logger"
)

func Run(version, commitHash string) {
	app := cli.App{
		Name:    "rotascope",
		Usage:   "stream virtual displays to viewers that switch them by rotating",
		Version: fmt.Sprintf("%s; %s; %s", version, commitHash, runtime.Version()),
		Commands: []*cli.Command{
			serveCmd(version),
			watchCmd(),
			displaysCmd(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration, initializes the logger and emits the
// deferred config logs. It exits on fatal config problems.
func loadConfig() config.Config {
	conf, errs := config.Get()
	logger.Init(conf.LogLevel.AsZeroLogLevel())

	exit := false
	for _, err := range errs {
		log.WithLevel(err.Level).Msg(err.Msg)
		exit = exit || err.Level == zerolog.FatalLevel || err.Level == zerolog.PanicLevel
	}
	if exit {
		os.Exit(1)
	}
	return conf
}
