package assistant

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/krishisevak/assistant/internal/model/query"
	"github.com/krishisevak/assistant/internal/service/capture"
	"github.com/krishisevak/assistant/internal/service/gateway"
	sessionservice "github.com/krishisevak/assistant/internal/service/session"
)

type voiceGateway struct {
	recordings chan capture.Recording
	reply      gateway.Reply
}

func (g *voiceGateway) AskText(_ context.Context, _ string) (gateway.Reply, error) {
	return g.reply, nil
}

func (g *voiceGateway) AskAudio(_ context.Context, rec capture.Recording) (gateway.Reply, error) {
	g.recordings <- rec
	return g.reply, nil
}

type wsEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	AudioRef  string `json:"audioRef"`
	Text      string `json:"text"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event wsEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event err: %v", err)
	}
	return event
}

func sendEvent(t *testing.T, conn *websocket.Conn, payload map[string]string) {
	t.Helper()
	data, _ := json.Marshal(payload)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write event err: %v", err)
	}
}

func dialVoice(t *testing.T, gw gateway.Client) (*websocket.Conn, *sessionservice.Session, func()) {
	t.Helper()

	manager := sessionservice.NewManager(gw, query.NewMemoryStore(query.Seed()), sessionservice.Texts{})
	sess := manager.Create(context.Background())

	r := chi.NewRouter()
	NewWebSocketHandler(manager).RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws/" + sess.ID()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial err: %v", err)
	}

	cleanup := func() {
		conn.Close()
		srv.Close()
	}
	return conn, sess, cleanup
}

func TestVoiceChannelRejectsUnknownSession(t *testing.T) {
	manager := sessionservice.NewManager(&stubGateway{}, query.NewMemoryStore(query.Seed()), sessionservice.Texts{})
	r := chi.NewRouter()
	NewWebSocketHandler(manager).RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws/unknown"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}

func TestVoiceCaptureOverWebSocket(t *testing.T) {
	gw := &voiceGateway{
		recordings: make(chan capture.Recording, 1),
		reply:      gateway.Reply{Text: "जवाब", AudioRef: "http://host/audio/reply.mp3"},
	}
	conn, sess, cleanup := dialVoice(t, gw)
	defer cleanup()

	if event := readEvent(t, conn); event.Type != "connected" {
		t.Fatalf("expected connected event, got %s", event.Type)
	}

	sendEvent(t, conn, map[string]string{"type": "captureStart"})
	sendEvent(t, conn, map[string]string{
		"type": "audio",
		"data": base64.StdEncoding.EncodeToString([]byte("chunk-1|")),
	})
	sendEvent(t, conn, map[string]string{
		"type": "audio",
		"data": base64.StdEncoding.EncodeToString([]byte("chunk-2")),
	})
	sendEvent(t, conn, map[string]string{"type": "captureEnd"})

	select {
	case rec := <-gw.recordings:
		if string(rec.Data) != "chunk-1|chunk-2" {
			t.Fatalf("unexpected recording: %q", rec.Data)
		}
		if rec.Format != "webm" {
			t.Fatalf("unexpected format: %s", rec.Format)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recording never reached the gateway")
	}

	// The reply carries audio, so the client is told to play it.
	event := readEvent(t, conn)
	if event.Type != "play" {
		t.Fatalf("expected play event, got %s", event.Type)
	}
	if event.AudioRef != "http://host/audio/reply.mp3" {
		t.Fatalf("unexpected audioRef: %s", event.AudioRef)
	}
	deadlineActive := time.Now().Add(time.Second)
	for sess.Snapshot().ActivePlaybackID != event.MessageID {
		if time.Now().After(deadlineActive) {
			t.Fatalf("active playback should be %s", event.MessageID)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Natural end reported by the client resets the indicator.
	sendEvent(t, conn, map[string]string{"type": "playbackEnded", "messageId": event.MessageID})

	deadline := time.Now().Add(time.Second)
	for sess.Snapshot().ActivePlaybackID != "" {
		if time.Now().After(deadline) {
			t.Fatal("active playback id never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestVoiceChannelUnsupportedType(t *testing.T) {
	conn, _, cleanup := dialVoice(t, &stubGateway{})
	defer cleanup()

	if event := readEvent(t, conn); event.Type != "connected" {
		t.Fatalf("expected connected event, got %s", event.Type)
	}

	sendEvent(t, conn, map[string]string{"type": "bogus"})

	if event := readEvent(t, conn); event.Type != "error" {
		t.Fatalf("expected error event, got %s", event.Type)
	}
}
