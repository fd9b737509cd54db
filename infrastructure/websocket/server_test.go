package websocket

import (
	"collab-lab/contract"
	"collab-lab/domain"
	"collab-lab/domain/event"
	"collab-lab/mocks"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestServer(t *testing.T, service contract.ISessionService, cfg Config) *httptest.Server {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	srv := httptest.NewServer(NewServer(context.Background(), log, service, cfg))
	t.Cleanup(srv.Close)
	return srv
}

func defaultConfig() Config {
	return Config{
		BufferSize:        16,
		MaxMessageSize:    1 << 20,
		MessagesPerSecond: 100,
		MessageBurst:      100,
		AllowedOrigin:     "*",
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) event.Envelope {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var envelope event.Envelope
	require.NoError(t, conn.ReadJSON(&envelope))
	return envelope
}

func TestServer_RejectsInvalidJoin(t *testing.T) {
	ctrl := gomock.NewController(t)
	srv := newTestServer(t, mocks.NewMockISessionService(ctrl), defaultConfig())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?roomId=..%2Fetc&userName=alice"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_JoinHandleDisconnect(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	service := mocks.NewMockISessionService(ctrl)

	joined := make(chan domain.ConnectionID, 1)
	handled := make(chan domain.ConnectionID, 1)
	disconnected := make(chan struct{})

	service.EXPECT().
		Join(gomock.Any(), gomock.Any(), domain.JoinCommand{Room: "A1B2", DisplayName: "alice"}, gomock.Any()).
		DoAndReturn(func(ctx context.Context, connID domain.ConnectionID, _ domain.JoinCommand, sink contract.EventSink) error {
			joined <- connID
			return sink.Consume(ctx, event.NewMember{connID: "alice"})
		})
	service.EXPECT().
		Handle(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, connID domain.ConnectionID, cmd domain.Command) error {
			if cmd != (domain.CodeRequestCommand{Lang: domain.Python}) {
				return errors.New("unexpected command")
			}
			handled <- connID
			return nil
		})
	service.EXPECT().
		Disconnect(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, connID domain.ConnectionID) { close(disconnected) })

	srv := newTestServer(t, service, defaultConfig())
	conn := dial(t, srv, "roomId=A1B2&userName=alice")

	// Then the roster sent during the join reaches the client
	id := <-joined
	envelope := readEnvelope(t, conn)
	req.Equal("newMember", envelope.Event)
	var roster map[string]string
	req.NoError(json.Unmarshal(envelope.Data, &roster))
	req.Equal(map[string]string{string(id): "alice"}, roster)

	// When the client sends a command
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"codeRequest","data":{"lang":"python"}}`)))
	select {
	case connID := <-handled:
		req.Equal(id, connID)
	case <-time.After(2 * time.Second):
		req.Fail("command not handled")
	}

	// When the client goes away
	_ = conn.Close()
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		req.Fail("disconnect not reported")
	}
}

func TestServer_InvalidFrameAnsweredPrivately(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	service := mocks.NewMockISessionService(ctrl)
	service.EXPECT().Join(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	service.EXPECT().Disconnect(gomock.Any(), gomock.Any()).AnyTimes()

	srv := newTestServer(t, service, defaultConfig())
	conn := dial(t, srv, "roomId=A1B2&userName=alice")

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"teleport","data":{}}`)))

	envelope := readEnvelope(t, conn)
	req.Equal("invalidRequest", envelope.Event)
	var reply event.InvalidRequest
	req.NoError(json.Unmarshal(envelope.Data, &reply))
	req.Equal("teleport", reply.Event)
	req.Contains(reply.Reason, "unknown event")
}

func TestServer_RateLimited(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	service := mocks.NewMockISessionService(ctrl)
	service.EXPECT().Join(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	service.EXPECT().Handle(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	service.EXPECT().Disconnect(gomock.Any(), gomock.Any()).AnyTimes()

	cfg := defaultConfig()
	cfg.MessagesPerSecond = 0.001
	cfg.MessageBurst = 1
	srv := newTestServer(t, service, cfg)
	conn := dial(t, srv, "roomId=A1B2&userName=alice")

	frame := []byte(`{"event":"filesList"}`)
	req.NoError(conn.WriteMessage(websocket.TextMessage, frame))
	req.NoError(conn.WriteMessage(websocket.TextMessage, frame))

	envelope := readEnvelope(t, conn)
	req.Equal("invalidRequest", envelope.Event)
	var reply event.InvalidRequest
	req.NoError(json.Unmarshal(envelope.Data, &reply))
	req.Contains(reply.Reason, "slow down")
}
