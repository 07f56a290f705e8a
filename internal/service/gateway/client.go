package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/krishisevak/assistant/internal/service/capture"
)

// ErrUnavailable reports that the assistant endpoint could not be reached or
// did not answer in time. Callers treat it as a single opaque failure.
var ErrUnavailable = errors.New("assistant gateway unavailable")

// Reply is what the assistant returns for either input kind: the answer text
// plus an optional locator of a synthesized voice clip.
type Reply struct {
	Text     string
	AudioRef string
}

// Client sends user input to the remote assistant.
type Client interface {
	AskText(ctx context.Context, text string) (Reply, error)
	AskAudio(ctx context.Context, rec capture.Recording) (Reply, error)
}

// HTTPClient talks to the assistant's /chat endpoint with multipart form
// payloads, mirroring the contract of the chatbot backend.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient creates a client for the assistant at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type chatResponse struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// AskText submits a typed question.
func (c *HTTPClient) AskText(ctx context.Context, text string) (Reply, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("text", text); err != nil {
		return Reply{}, fmt.Errorf("encode text field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Reply{}, fmt.Errorf("finalize form: %w", err)
	}

	return c.post(ctx, body, writer.FormDataContentType())
}

// AskAudio submits one recorded voice payload.
func (c *HTTPClient) AskAudio(ctx context.Context, rec capture.Recording) (Reply, error) {
	format := rec.Format
	if format == "" {
		format = "webm"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "user_voice."+format)
	if err != nil {
		return Reply{}, fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(rec.Data); err != nil {
		return Reply{}, fmt.Errorf("write audio payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Reply{}, fmt.Errorf("finalize form: %w", err)
	}

	return c.post(ctx, body, writer.FormDataContentType())
}

func (c *HTTPClient) post(ctx context.Context, body io.Reader, contentType string) (Reply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", body)
	if err != nil {
		return Reply{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Reply{}, fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, resp.StatusCode, string(raw))
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Reply{}, fmt.Errorf("%w: decode reply: %v", ErrUnavailable, err)
	}

	return Reply{Text: payload.Text, AudioRef: c.resolveAudioRef(payload.Voice)}, nil
}

// resolveAudioRef turns the relative voice path of the reply into an absolute
// locator the client can fetch.
func (c *HTTPClient) resolveAudioRef(voice string) string {
	voice = strings.TrimSpace(voice)
	if voice == "" {
		return ""
	}
	if u, err := url.Parse(voice); err == nil && u.IsAbs() {
		return voice
	}
	if !strings.HasPrefix(voice, "/") {
		voice = "/" + voice
	}
	return c.baseURL + voice
}
