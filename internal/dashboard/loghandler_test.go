package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastHandler_MirrorsRecords(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	// given
	hub, _ := startHub(t)
	c := &Client{hub: hub, send: make(chan []byte, 4)}
	r.True(hub.add(c))

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(NewBroadcastHandler(hub, inner)).With("component", "gate")

	// when
	logger.Warn("recording decision", "tool", "readLocalFile", "error", errors.New("disk full"))

	// then
	select {
	case data := <-c.send:
		var msg Message
		r.NoError(json.Unmarshal(data, &msg))
		a.Equal("log", msg.Type)
		a.Equal("WARN", msg.Level)
		a.Equal("recording decision", msg.Msg)
		a.Equal("gate", msg.Attrs["component"])
		a.Equal("readLocalFile", msg.Attrs["tool"])
		a.Equal("disk full", msg.Attrs["error"])
	case <-time.After(time.Second):
		t.Fatal("log record not broadcast")
	}
	a.Contains(buf.String(), `"msg":"recording decision"`)
}

func TestBroadcastHandler_RespectsInnerLevel(t *testing.T) {
	hub := NewHub()
	inner := slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := NewBroadcastHandler(hub, inner)

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
