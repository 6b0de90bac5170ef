package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/AsterZephyr/rotascope/client"
	"github.com/AsterZephyr/rotascope/logger"
	"github.com/AsterZephyr/rotascope/message"
	"github.com/AsterZephyr/rotascope/wire"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "connect as a viewer and print what the server streams",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Value: "localhost:5051", Usage: "address of the framed TCP transport"},
			&cli.StringFlag{Name: "url", Usage: "websocket url, e.g. ws://localhost:5050/stream, used instead of --address"},
			&cli.StringFlag{Name: "format", Value: "json", Usage: "message format, json or cbor"},
			&cli.StringSliceFlag{Name: "switch", Usage: "send a display switch after connecting: next or previous"},
			&cli.Float64Flag{Name: "rotate", Usage: "send one sensor reading with this rotation_y after connecting"},
			&cli.DurationFlag{Name: "heartbeat", Value: 5 * time.Second, Usage: "heartbeat interval"},
			&cli.DurationFlag{Name: "duration", Usage: "stop after this long, 0 runs until interrupted"},
			&cli.DurationFlag{Name: "stats", Value: 5 * time.Second, Usage: "frame statistics interval"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Action: func(cliCtx *cli.Context) error {
			level, err := zerolog.ParseLevel(cliCtx.String("log-level"))
			if err != nil {
				return err
			}
			logger.Init(level)

			format, err := message.FormatByName(cliCtx.String("format"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			if d := cliCtx.Duration("duration"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			opts := client.Options{Format: format, MaxFrameSize: wire.DefaultMaxFrameSize}
			var c *client.Client
			if url := cliCtx.String("url"); url != "" {
				c, err = client.DialWebSocket(ctx, url, opts)
			} else {
				c, err = client.Dial(ctx, cliCtx.String("address"), opts)
			}
			if err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				_ = c.Close()
			}()

			if err := sendInitial(c, cliCtx); err != nil {
				return err
			}
			go heartbeat(ctx, c, cliCtx.Duration("heartbeat"))

			return watch(ctx, c, cliCtx.Duration("stats"))
		},
	}
}

func sendInitial(c *client.Client, cliCtx *cli.Context) error {
	for _, value := range cliCtx.StringSlice("switch") {
		var direction message.Direction
		switch value {
		case "next":
			direction = message.Next
		case "previous":
			direction = message.Previous
		default:
			return fmt.Errorf("invalid switch %q, must be next or previous", value)
		}
		if err := c.Send(&message.SwitchDisplay{Direction: direction}); err != nil {
			return err
		}
	}
	if cliCtx.IsSet("rotate") {
		return c.Send(&message.SensorData{RotationY: float32(cliCtx.Float64("rotate"))})
	}
	return nil
}

func heartbeat(ctx context.Context, c *client.Client, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Send(&message.Heartbeat{}); err != nil {
				log.Debug().Err(err).Msg("Heartbeat")
				return
			}
		}
	}
}

func watch(ctx context.Context, c *client.Client, statsInterval time.Duration) error {
	var (
		frames int
		bytes  int
		since  = time.Now()
	)
	for {
		received, err := c.Receive()
		if err != nil {
			if ctx.Err() != nil || client.IsClosed(err) {
				log.Info().Msg("Disconnected")
				return nil
			}
			return err
		}

		switch msg := received.Status.(type) {
		case nil:
			frames++
			bytes += len(received.Frame)
		case *message.DisplayConfig:
			log.Info().
				Uint8("current", msg.CurrentDisplay).
				Uint8("total", msg.TotalDisplays).
				Interface("resolutions", msg.Resolutions).
				Msg("Display config")
		case *message.Error:
			log.Warn().Str("message", msg.Message).Msg("Server error")
		default:
			log.Debug().Str("type", msg.Type()).Msg("Receive")
		}

		if statsInterval > 0 && time.Since(since) >= statsInterval {
			event := log.Info().Int("frames", frames)
			if frames > 0 {
				event = event.Int("avg_bytes", bytes/frames)
			}
			event.Str("fps", fmt.Sprintf("%.1f", float64(frames)/time.Since(since).Seconds())).Msg("Frame stats")
			frames, bytes, since = 0, 0, time.Now()
		}
	}
}
