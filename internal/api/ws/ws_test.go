package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T) *websocket.Conn {
	initWS("")

	srv := httptest.NewServer(http.HandlerFunc(apiWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Nil(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandler(t *testing.T) {
	closed := make(chan struct{})

	HandleFunc("echo", func(tr *Transport, msg *Message) error {
		tr.OnClose(func() { close(closed) })
		tr.Write(&Message{Type: "echo", Value: msg.String()})
		return nil
	})
	HandleFunc("fail", func(tr *Transport, msg *Message) error {
		return errors.New("boom")
	})

	conn := dial(t)

	var msg Message

	require.Nil(t, conn.WriteJSON(map[string]any{"type": "echo", "value": "hello"}))
	require.Nil(t, conn.ReadJSON(&msg))
	require.Equal(t, Message{Type: "echo", Value: "hello"}, msg)

	require.Nil(t, conn.WriteJSON(map[string]any{"type": "fail"}))
	require.Nil(t, conn.ReadJSON(&msg))
	require.Equal(t, Message{Type: "error", Value: "fail: boom"}, msg)

	require.Nil(t, conn.WriteJSON(map[string]any{"type": "nope"}))
	require.Nil(t, conn.ReadJSON(&msg))
	require.Equal(t, "error", msg.Type)

	_ = conn.Close()
	<-closed
}

func TestTransportOnCloseAfterClose(t *testing.T) {
	tr := &Transport{}
	tr.Close()

	var called bool
	tr.OnClose(func() { called = true })
	require.True(t, called)
}
