package cmd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsterZephyr/rotascope/client"
	"github.com/AsterZephyr/rotascope/display"
	"github.com/AsterZephyr/rotascope/hub"
	"github.com/AsterZephyr/rotascope/message"
	"github.com/AsterZephyr/rotascope/session"
	"github.com/AsterZephyr/rotascope/transport"
)

func TestWatch_endsOnDisconnect(t *testing.T) {
	h := hub.New()
	state, err := display.NewState(2, []message.Resolution{{640, 480}}, h)
	require.NoError(t, err)
	sessions := session.NewServer(h, state, session.Options{RotationThreshold: 30, SessionBuffer: 8})

	serverConn, clientConn := net.Pipe()
	go sessions.Serve(context.Background(), transport.NewTCP(serverConn, transport.Options{}), "pipe")

	c := client.New(transport.NewTCP(clientConn, transport.Options{}), message.JSON)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, c, time.Millisecond)
	}()

	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Send(&message.SwitchDisplay{Direction: message.Next}))
	require.Eventually(t, func() bool { return state.Current() == 1 }, 2*time.Second, 5*time.Millisecond)
	h.Broadcast(&message.VideoFrame{Payload: []byte{0xff, 0xd8}})

	cancel()
	require.NoError(t, c.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return")
	}
}
