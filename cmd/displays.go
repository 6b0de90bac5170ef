package cmd

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/AsterZephyr/rotascope/display"
)

func displaysCmd() *cli.Command {
	return &cli.Command{
		Name:  "displays",
		Usage: "print the configured displays as a layout file",
		Action: func(cliCtx *cli.Context) error {
			conf := loadConfig()

			provider, err := newProvider(conf)
			if err != nil {
				return err
			}
			if err := provider.Initialize(cliCtx.Context); err != nil {
				return err
			}

			data, err := display.LayoutOf(provider).Marshal()
			if err != nil {
				return err
			}
			log.Debug().Str("backend", provider.Name()).Uint8("count", provider.Count()).Msg("Displays")
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}
