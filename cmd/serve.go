package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/AsterZephyr/rotascope/capture"
	"github.com/AsterZephyr/rotascope/config"
	"github.com/AsterZephyr/rotascope/display"
	"github.com/AsterZephyr/rotascope/encode"
	"github.com/AsterZephyr/rotascope/hub"
	"github.com/AsterZephyr/rotascope/router"
	"github.com/AsterZephyr/rotascope/server"
	"github.com/AsterZephyr/rotascope/session"
	"github.com/AsterZephyr/rotascope/stream"
)

func serveCmd(version string) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the streaming server",
		Action: func(cliCtx *cli.Context) error {
			conf := loadConfig()

			ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			provider, err := newProvider(conf)
			if err != nil {
				log.Fatal().Err(err).Msg("Display provider")
			}
			if err := provider.Initialize(ctx); err != nil {
				log.Fatal().Err(err).Str("backend", provider.Name()).Msg("Could not initialize displays")
			}

			h := hub.New()
			state, err := display.NewState(provider.Count(), provider.Resolutions(), h)
			if err != nil {
				log.Fatal().Err(err).Msg("Display state")
			}
			capturer, err := capture.New(conf.CaptureBackend, provider.Resolutions())
			if err != nil {
				log.Fatal().Err(err).Msg("Capture")
			}
			encoder, err := encode.New(conf.Encoder, conf.Quality)
			if err != nil {
				log.Fatal().Err(err).Msg("Encoder")
			}

			sessions := session.NewServer(h, state, session.Options{
				Format:            conf.Format(),
				MaxFrameSize:      conf.MaxFrameSize,
				SessionBuffer:     conf.SessionBuffer,
				HeartbeatInterval: conf.HeartbeatInterval,
				HeartbeatTimeout:  conf.HeartbeatTimeout,
				WriteTimeout:      conf.WriteTimeout,
				RotationThreshold: conf.RotationThreshold,
				TrustProxy:        conf.TrustProxyHeaders,
				CheckOrigin:       conf.CheckOrigin,
			})

			httpListener, err := net.Listen("tcp", conf.ServerAddress)
			if err != nil {
				log.Fatal().Err(err).Str("address", conf.ServerAddress).Msg("Could not bind HTTP listener")
			}
			if conf.TCPAddress != "" {
				tcpListener, err := net.Listen("tcp", conf.TCPAddress)
				if err != nil {
					log.Fatal().Err(err).Str("address", conf.TCPAddress).Msg("Could not bind framed listener")
				}
				go func() {
					if err := sessions.ServeTCP(tcpListener); err != nil {
						log.Error().Err(err).Msg("Framed listener stopped")
						stop()
					}
				}()
			}

			streamer := stream.New(state, capturer, encoder, h, stream.Options{FrameRate: conf.FrameRate})
			streamDone := make(chan struct{})
			go func() {
				defer close(streamDone)
				_ = streamer.Run(ctx)
			}()

			log.Info().
				Uint8("displays", state.Total()).
				Str("format", conf.Format().Name()).
				Msg("Server ready")

			r := router.Router(conf, sessions, h, state, version)
			if err := server.Start(ctx, r, httpListener, conf.TLSCertFile, conf.TLSKeyFile); err != nil {
				log.Fatal().Err(err).Msg("HTTP server")
			}

			stop()
			<-streamDone
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sessions.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Sessions did not close in time")
			}
			return nil
		},
	}
}

func newProvider(conf config.Config) (display.Provider, error) {
	return display.NewProvider(display.ProviderOptions{
		Backend:     conf.DisplayBackend,
		Count:       conf.DisplayCount,
		Resolutions: conf.DisplayResolutions,
		LayoutFile:  conf.DisplayLayoutFile,
	})
}
