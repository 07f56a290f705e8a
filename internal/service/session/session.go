package session

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/krishisevak/assistant/internal/model/chat"
	"github.com/krishisevak/assistant/internal/model/query"
	"github.com/krishisevak/assistant/internal/service/capture"
	"github.com/krishisevak/assistant/internal/service/gateway"
	"github.com/krishisevak/assistant/internal/service/playback"
	"github.com/krishisevak/assistant/internal/service/transcript"
)

// Texts carries the canned user-visible strings of a session.
type Texts struct {
	Greeting  string
	Fallback  string
	MicNotice string
}

// State is the read-only snapshot the presentation layer renders from.
type State struct {
	Messages         []chat.Message `json:"messages"`
	Loading          bool           `json:"loading"`
	IsCapturing      bool           `json:"isCapturing"`
	ActivePlaybackID string         `json:"activePlaybackId,omitempty"`
	IsPanelOpen      bool           `json:"isPanelOpen"`
}

// Session orchestrates one conversational exchange: it owns the transcript,
// drives the assistant gateway and arbitrates the capture and playback
// controllers. All failures are absorbed here; the session stays usable
// after any of them.
type Session struct {
	id      string
	texts   Texts
	gw      gateway.Client
	queries query.Store

	tx       *transcript.Store
	capture  *capture.Controller
	playback *playback.Controller

	mu        sync.Mutex
	pending   int
	panelOpen bool

	subMu    sync.Mutex
	nextSub  int
	stateSub map[int]chan struct{}
	notices  map[int]chan string
}

// New creates a session with an empty transcript and detached media devices.
// A greeting entry is seeded when texts.Greeting is non-empty.
func New(id string, gw gateway.Client, queries query.Store, texts Texts) *Session {
	s := &Session{
		id:       id,
		texts:    texts,
		gw:       gw,
		queries:  queries,
		tx:       transcript.NewStore(id),
		capture:  capture.NewController("webm"),
		playback: playback.NewController(),
		stateSub: make(map[int]chan struct{}),
		notices:  make(map[int]chan string),
	}

	// End-of-clip resets are observable without further user action.
	s.playback.SetOnChange(s.notifyState)

	if texts.Greeting != "" {
		s.tx.Append(chat.SenderAssistant, texts.Greeting, "")
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// AttachVoice wires a capture source and a playback device to the session,
// typically for the lifetime of one voice channel connection.
func (s *Session) AttachVoice(source capture.Source, player playback.Player) {
	s.capture.SetSource(source)
	s.playback.SetPlayer(player)
	s.notifyState()
}

// DetachVoice releases the media devices. A capture that is still armed is
// discarded; its payload is never submitted.
func (s *Session) DetachVoice() {
	if _, ok := s.capture.End(); ok {
		log.Printf("[session] %s: discarded armed capture on detach", s.id)
	}
	s.capture.SetSource(nil)
	s.playback.SetPlayer(nil)
	s.notifyState()
}

// SendText submits typed input. Blank input is silently ignored. The user
// entry is appended synchronously; the assistant entry follows when the
// gateway call resolves, in completion order across overlapping calls.
func (s *Session) SendText(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.tx.Append(chat.SenderUser, text, "")
	s.beginCall()

	// The call outlives the triggering request on purpose: closing the
	// panel or dropping the connection must not lose the exchange.
	callCtx := context.WithoutCancel(ctx)
	go func() {
		reply, err := s.gw.AskText(callCtx, text)
		s.finishCall(reply, err)
	}()
}

// SendQuickQuery submits one of the canned catalogue questions. Unknown ids
// are ignored.
func (s *Session) SendQuickQuery(ctx context.Context, queryID string) {
	preset, ok := s.queries.FindByID(queryID)
	if !ok {
		log.Printf("[session] %s: unknown quick query %q", s.id, queryID)
		return
	}
	s.SendText(ctx, preset.Text)
}

// BeginVoiceCapture arms the microphone. Device failures become a one-shot
// notice, never an error escaping to the caller.
func (s *Session) BeginVoiceCapture(ctx context.Context) {
	if err := s.capture.Begin(ctx); err != nil {
		log.Printf("[session] %s: capture begin failed: %v", s.id, err)
		s.notifyNotice(s.texts.MicNotice)
		return
	}
	s.notifyState()
}

// EndVoiceCapture disarms the microphone and submits the recording. No user
// transcript entry is appended for voice input; only the assistant's reply
// lands in the transcript.
func (s *Session) EndVoiceCapture(ctx context.Context) {
	rec, ok := s.capture.End()
	if !ok {
		return
	}
	s.notifyState()

	if len(rec.Data) == 0 {
		log.Printf("[session] %s: empty recording dropped", s.id)
		return
	}

	s.beginCall()
	callCtx := context.WithoutCancel(ctx)
	go func() {
		reply, err := s.gw.AskAudio(callCtx, rec)
		s.finishCall(reply, err)
	}()
}

// TogglePlayback starts, switches or pauses the clip attached to the given
// message. Messages without audio are ignored.
func (s *Session) TogglePlayback(messageID string) {
	message, ok := s.tx.Find(messageID)
	if !ok || !message.HasAudio() {
		return
	}
	if err := s.playback.Toggle(message.ID, message.AudioRef); err != nil {
		log.Printf("[session] %s: playback toggle failed: %v", s.id, err)
	}
}

// OpenPanel marks the chat panel visible. Transcript and in-flight calls are
// untouched.
func (s *Session) OpenPanel() {
	s.mu.Lock()
	s.panelOpen = true
	s.mu.Unlock()
	s.notifyState()
}

// ClosePanel hides the chat panel. In-flight calls keep resolving into the
// still-owned transcript so reopening shows the completed exchange.
func (s *Session) ClosePanel() {
	s.mu.Lock()
	s.panelOpen = false
	s.mu.Unlock()
	s.notifyState()
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	pending := s.pending
	panelOpen := s.panelOpen
	s.mu.Unlock()

	return State{
		Messages:         s.tx.Snapshot(),
		Loading:          pending > 0,
		IsCapturing:      s.capture.Armed(),
		ActivePlaybackID: s.playback.ActiveID(),
		IsPanelOpen:      panelOpen,
	}
}

// Subscribe registers for change notifications. The returned channel gets a
// (coalesced) signal after every state transition; cancel unregisters.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.stateSub[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.stateSub, id)
		s.subMu.Unlock()
	}
}

// SubscribeNotices registers for one-shot user-facing notices such as a
// failed microphone acquisition.
func (s *Session) SubscribeNotices() (<-chan string, func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan string, 4)
	s.notices[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.notices, id)
		s.subMu.Unlock()
	}
}

// Close releases the session's media resources. The transcript is dropped
// with the session; message history is session-scoped by design.
func (s *Session) Close() {
	s.playback.Stop()
	if _, ok := s.capture.End(); ok {
		log.Printf("[session] %s: discarded armed capture on close", s.id)
	}
	s.capture.SetSource(nil)
	s.playback.SetPlayer(nil)
}

// beginCall raises the loading flag for one outstanding gateway call.
func (s *Session) beginCall() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
	s.notifyState()
}

// finishCall appends the assistant entry for one resolved call and lowers
// the loading flag. Gateway failures become the fixed fallback entry; no
// error propagates further. A reply that carries audio starts playing
// automatically.
func (s *Session) finishCall(reply gateway.Reply, err error) {
	var message chat.Message
	if err != nil {
		log.Printf("[session] %s: gateway call failed: %v", s.id, err)
		message = s.tx.Append(chat.SenderAssistant, s.texts.Fallback, "")
	} else {
		message = s.tx.Append(chat.SenderAssistant, reply.Text, reply.AudioRef)
	}

	s.mu.Lock()
	s.pending--
	s.mu.Unlock()
	s.notifyState()

	if message.HasAudio() {
		if err := s.playback.Toggle(message.ID, message.AudioRef); err != nil {
			log.Printf("[session] %s: auto-play failed: %v", s.id, err)
		}
	}
}

func (s *Session) notifyState() {
	s.subMu.Lock()
	for _, ch := range s.stateSub {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.subMu.Unlock()
}

func (s *Session) notifyNotice(text string) {
	s.subMu.Lock()
	for _, ch := range s.notices {
		select {
		case ch <- text:
		default:
		}
	}
	s.subMu.Unlock()
}
