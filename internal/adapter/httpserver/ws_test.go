package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/ai-job-agent/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/internal/eventbus"
)

type wsFixture struct {
	ts    *httptest.Server
	bus   *eventbus.Bus
	token string
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	bus := eventbus.New(4)
	t.Cleanup(bus.Shutdown)
	srv := &httpserver.Server{
		Tokens: httpserver.NewTokenIssuer("unit-secret", time.Hour),
		Bus:    bus,
	}
	ts := httptest.NewServer(srv.WSHandler())
	t.Cleanup(ts.Close)
	token, _, err := srv.Tokens.Issue("u1")
	require.NoError(t, err)
	return &wsFixture{ts: ts, bus: bus, token: token}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + f.ts.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func wsSend(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(text)))
}

func wsReadEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var e map[string]any
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func Test_WS_RejectsInvalidToken(t *testing.T) {
	t.Parallel()
	f := newWSFixture(t)
	conn := f.dial(t)

	wsSend(t, conn, "not-a-token")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func Test_WS_StreamsUserEvents(t *testing.T) {
	t.Parallel()
	f := newWSFixture(t)
	conn := f.dial(t)

	// The Bearer prefix is optional on the auth frame.
	wsSend(t, conn, "Bearer "+f.token)

	hello := wsReadEvent(t, conn)
	assert.Equal(t, string(domain.EventLogEntry), hello["type"])
	assert.NotEmpty(t, hello["id"])
	data, _ := hello["data"].(map[string]any)
	require.NotNil(t, data)
	assert.Equal(t, "connected", data["message"])
	assert.Equal(t, "info", data["level"])

	// Another user's traffic must not leak onto this socket: emit for
	// a stranger first, then for the subscriber, and expect only the
	// subscriber's frame.
	f.bus.Emit("someone-else", domain.Event{
		ID: "01zzz", Type: domain.EventAgentError, At: time.Now().UTC(),
		Data: domain.EventData{Error: "should not be seen"},
	})
	f.bus.Emit("u1", domain.Event{
		ID: "01abc", Type: domain.EventAgentProgress, At: time.Now().UTC(),
		Data: domain.EventData{Agent: "job_search", Stage: "boards", Progress: 50, Message: "Searching job boards"},
	})

	e := wsReadEvent(t, conn)
	assert.Equal(t, "01abc", e["id"])
	assert.Equal(t, string(domain.EventAgentProgress), e["type"])
	data, _ = e["data"].(map[string]any)
	require.NotNil(t, data)
	assert.Equal(t, "job_search", data["agent"])
	assert.EqualValues(t, 50, data["progress"])
}

func Test_WS_AnswersPing(t *testing.T) {
	t.Parallel()
	f := newWSFixture(t)
	conn := f.dial(t)

	wsSend(t, conn, f.token)
	hello := wsReadEvent(t, conn)
	require.Equal(t, string(domain.EventLogEntry), hello["type"])

	wsSend(t, conn, "ping")
	pong := wsReadEvent(t, conn)
	assert.Equal(t, string(domain.EventPong), pong["type"])
	assert.NotEmpty(t, pong["id"])
}
