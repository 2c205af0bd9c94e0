package broker

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestPublishMirrorsEveryLine(t *testing.T) {
	ns := runServer(t)

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 4)
	_, err = sub.ChanSubscribe("zoom.archive.meetings-past", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	p, err := Connect(ns.ClientURL(), "", zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "nats", p.Name())
	require.NoError(t, p.Publish(context.Background(), "meetings-past", [][]byte{
		[]byte(`{"uuid":"a"}`),
		[]byte(`{"uuid":"b"}`),
	}))

	var got []string
	for range 2 {
		select {
		case m := <-msgs:
			got = append(got, string(m.Data))
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for mirrored line")
		}
	}
	assert.Equal(t, []string{`{"uuid":"a"}`, `{"uuid":"b"}`}, got)
}
