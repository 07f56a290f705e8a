package assistant

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/krishisevak/assistant/internal/service/capture"
	"github.com/krishisevak/assistant/internal/service/playback"
	sessionservice "github.com/krishisevak/assistant/internal/service/session"
)

const (
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	chunkChanSize = 256
)

// WebSocketHandler runs the voice channel of a session. The connection
// doubles as the session's microphone source (the browser streams recorded
// chunks up) and its playback device (the browser renders clips and reports
// when they end).
type WebSocketHandler struct {
	sessions *sessionservice.Manager
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the voice channel handler.
func NewWebSocketHandler(sessions *sessionservice.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes wires the voice channel route.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/voice/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] voice channel opened for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	vc := &voiceConn{conn: conn, handles: make(map[string]*clipHandle)}
	sess.AttachVoice(vc, vc)
	defer sess.DetachVoice()

	// Forward one-shot notices (e.g. capture failures) to the client.
	notices, cancelNotices := sess.SubscribeNotices()
	defer cancelNotices()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case text := <-notices:
				vc.send(map[string]any{"type": "notice", "text": text})
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(ctx, vc)

	vc.send(map[string]any{"type": "connected", "sessionId": sessionID})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		h.handleMessage(ctx, sess, vc, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, sess *sessionservice.Session, vc *voiceConn, msg *inboundMessage) {
	switch msg.Type {
	case "captureStart":
		sess.BeginVoiceCapture(ctx)
	case "audio":
		chunk, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			vc.send(map[string]any{"type": "error", "text": "invalid audio payload"})
			return
		}
		vc.pushChunk(chunk)
	case "captureEnd":
		sess.EndVoiceCapture(ctx)
	case "playbackEnded":
		vc.clipEnded(msg.MessageID)
	default:
		vc.send(map[string]any{"type": "error", "text": "unsupported message type: " + msg.Type})
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, vc *voiceConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := vc.ping(); err != nil {
				return
			}
		}
	}
}

// voiceConn bridges one websocket connection to the capture and playback
// controllers of a session.
type voiceConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	stream  *micStream
	handles map[string]*clipHandle
}

// Open implements capture.Source: each capture cycle gets a fresh chunk
// stream fed by the client's audio messages.
func (vc *voiceConn) Open(_ context.Context) (capture.Stream, error) {
	stream := newMicStream()

	vc.mu.Lock()
	if vc.stream != nil {
		vc.stream.Stop()
	}
	vc.stream = stream
	vc.mu.Unlock()

	return stream, nil
}

// pushChunk routes an uploaded chunk into the live capture stream. Chunks
// arriving outside a capture cycle are dropped.
func (vc *voiceConn) pushChunk(chunk []byte) {
	vc.mu.Lock()
	stream := vc.stream
	vc.mu.Unlock()

	if stream == nil {
		return
	}
	stream.push(chunk)
}

// Play implements playback.Player: the client is told to render the clip
// and reports back when it ends.
func (vc *voiceConn) Play(id, source string) (playback.Handle, error) {
	handle := &clipHandle{id: id, conn: vc, done: make(chan struct{})}

	vc.mu.Lock()
	vc.handles[id] = handle
	vc.mu.Unlock()

	if err := vc.send(map[string]any{"type": "play", "messageId": id, "audioRef": source}); err != nil {
		vc.mu.Lock()
		delete(vc.handles, id)
		vc.mu.Unlock()
		return nil, err
	}
	return handle, nil
}

// clipEnded handles the client's natural end-of-clip report.
func (vc *voiceConn) clipEnded(id string) {
	vc.mu.Lock()
	handle := vc.handles[id]
	delete(vc.handles, id)
	vc.mu.Unlock()

	if handle != nil {
		handle.finish()
	}
}

func (vc *voiceConn) send(payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	vc.writeMu.Lock()
	defer vc.writeMu.Unlock()
	return vc.conn.WriteMessage(websocket.TextMessage, data)
}

func (vc *voiceConn) ping() error {
	vc.writeMu.Lock()
	defer vc.writeMu.Unlock()
	return vc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// micStream is one capture cycle's chunk pipe.
type micStream struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func newMicStream() *micStream {
	return &micStream{ch: make(chan []byte, chunkChanSize)}
}

func (s *micStream) Chunks() <-chan []byte { return s.ch }

func (s *micStream) Stop() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	return nil
}

func (s *micStream) push(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- chunk:
	default:
		log.Printf("[websocket] capture buffer full, dropping %d bytes", len(chunk))
	}
}

// clipHandle tracks one clip handed to the client.
type clipHandle struct {
	id   string
	conn *voiceConn
	once sync.Once
	done chan struct{}
}

func (h *clipHandle) Done() <-chan struct{} { return h.done }

// Stop tells the client to silence the clip; the controller calls this when
// the clip is paused or superseded.
func (h *clipHandle) Stop() error {
	h.finish()
	h.conn.mu.Lock()
	delete(h.conn.handles, h.id)
	h.conn.mu.Unlock()
	return h.conn.send(map[string]any{"type": "stop", "messageId": h.id})
}

func (h *clipHandle) finish() {
	h.once.Do(func() { close(h.done) })
}
