// Package backend provides the HTTP client for the Parlance tutor backend —
// the external service that performs transcription, reply generation,
// feedback, translation, speech synthesis and conversation persistence.
//
// The client is a thin, uniform wrapper over the backend's JSON API (the
// transcription endpoint is multipart). It performs no implicit retries;
// failure policy belongs to the callers, which wrap selected operations in
// circuit breakers or fallback groups (internal/resilience).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/parlancehq/parlance/pkg/audio"
)

// fallbackTranscription is the sentinel sentence the backend returns when the
// clip contained no intelligible speech.
const fallbackTranscription = "I couldn't hear anything clearly."

// IsFallbackTranscription reports whether text is the backend's
// nothing-was-heard sentinel. Orchestration skips short feedback for such
// turns — there is nothing real to correct.
func IsFallbackTranscription(text string) bool {
	return strings.TrimSpace(text) == fallbackTranscription
}

// APIError is returned for any non-2xx backend response.
type APIError struct {
	// Status is the HTTP status code.
	Status int

	// Endpoint is the path of the failing request.
	Endpoint string

	// Body is the (truncated) response body, useful for logs.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %s returned %d: %s", e.Endpoint, e.Status, e.Body)
}

// TokenSource supplies the bearer token attached to every request. The token
// may rotate between calls (refresh flows), so it is resolved per request.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token. An empty token
// sends requests without an Authorization header (anonymous sessions).
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource sets the bearer-token source. Default: anonymous.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// Client talks to the tutor backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// New creates a Client for the backend at baseURL (scheme and host, no
// trailing slash required).
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		tokens:     StaticToken(""),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ── Speech ────────────────────────────────────────────────────────────────────

// Transcribe uploads a finalised clip for transcription.
func (c *Client) Transcribe(ctx context.Context, clip *audio.Clip, language string) (*TranscribeResult, error) {
	if clip.Empty() {
		return nil, fmt.Errorf("backend: transcribe: clip is empty")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "clip"+extensionFor(clip.MIMEType))
	if err != nil {
		return nil, fmt.Errorf("backend: transcribe: build form: %w", err)
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return nil, fmt.Errorf("backend: transcribe: write clip: %w", err)
	}
	if err := mw.WriteField("language", language); err != nil {
		return nil, fmt.Errorf("backend: transcribe: write language: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("backend: transcribe: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/transcribe_only", &body)
	if err != nil {
		return nil, fmt.Errorf("backend: transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	out := &TranscribeResult{}
	if err := c.do(req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SynthesizeSpeech asks the backend to generate TTS audio for text and store
// it, returning the storage URL. The stored object may not be readable
// immediately; see [Client.ProbeURL].
func (c *Client) SynthesizeSpeech(ctx context.Context, req TTSRequest) (*TTSResult, error) {
	out := &TTSResult{}
	if err := c.postJSON(ctx, "/api/tts", req, out); err != nil {
		return nil, err
	}
	if out.TTSURL == "" {
		return nil, fmt.Errorf("backend: tts: empty ttsUrl in response")
	}
	return out, nil
}

// ProbeURL issues a HEAD request against url and returns nil when the
// resource is readable. Used to wait out the eventual consistency of the
// backend's audio storage.
func (c *Client) ProbeURL(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("backend: probe: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: probe %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Endpoint: url}
	}
	return nil
}

// ── Tutoring ──────────────────────────────────────────────────────────────────

// AIResponse requests the tutor's conversational reply for one user turn.
func (c *Client) AIResponse(ctx context.Context, req AIResponseRequest) (string, error) {
	out := &aiResponseResult{}
	if err := c.postJSON(ctx, "/api/ai_response", req, out); err != nil {
		return "", err
	}
	if out.Text() == "" {
		return "", fmt.Errorf("backend: ai_response: no reply text in response")
	}
	return out.Text(), nil
}

// ShortFeedback requests a one-line correction of the transcribed utterance.
func (c *Client) ShortFeedback(ctx context.Context, req ShortFeedbackRequest) (string, error) {
	out := &struct {
		Feedback string `json:"feedback"`
	}{}
	if err := c.postJSON(ctx, "/api/short_feedback", req, out); err != nil {
		return "", err
	}
	return out.Feedback, nil
}

// Translate translates text, optionally with a grammar breakdown.
func (c *Client) Translate(ctx context.Context, req TranslateRequest) (*TranslateResult, error) {
	out := &TranslateResult{}
	if err := c.postJSON(ctx, "/api/translate", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DetailedBreakdown requests a word-by-word breakdown of a sentence.
func (c *Client) DetailedBreakdown(ctx context.Context, req BreakdownRequest) (*BreakdownResult, error) {
	out := &BreakdownResult{}
	if err := c.postJSON(ctx, "/api/detailed_breakdown", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Suggestions requests possible next replies for the learner.
func (c *Client) Suggestions(ctx context.Context, req SuggestionsRequest) (*SuggestionsResult, error) {
	out := &SuggestionsResult{}
	if err := c.postJSON(ctx, "/api/suggestions", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExplainSuggestion requests an explanation of a suggested reply.
func (c *Client) ExplainSuggestion(ctx context.Context, req ExplainSuggestionRequest) (*ExplainSuggestionResult, error) {
	out := &ExplainSuggestionResult{}
	if err := c.postJSON(ctx, "/api/explain_suggestion", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ConversationSummary requests the end-of-conversation summary with per-goal
// progress deltas.
func (c *Client) ConversationSummary(ctx context.Context, req SummaryRequest) (*SummaryResult, error) {
	out := &SummaryResult{}
	if err := c.postJSON(ctx, "/api/conversation-summary", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Conversation persistence ──────────────────────────────────────────────────

// CreateConversation starts a persisted conversation and returns it with a
// backend-assigned ID.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (*Conversation, error) {
	out := &Conversation{}
	if err := c.postJSON(ctx, "/api/conversations", req, out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("backend: create conversation: empty id in response")
	}
	return out, nil
}

// AddMessage appends a message to a persisted conversation.
func (c *Client) AddMessage(ctx context.Context, conversationID string, msg ConversationMessage) error {
	return c.postJSON(ctx, "/api/conversations/"+conversationID+"/messages", msg, nil)
}

// GetConversation loads a persisted conversation including its messages.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/api/conversations/"+conversationID, nil)
	if err != nil {
		return nil, err
	}
	out := &Conversation{}
	if err := c.do(req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateTitle renames a persisted conversation.
func (c *Client) UpdateTitle(ctx context.Context, conversationID, title string) error {
	body := struct {
		Title string `json:"title"`
	}{Title: title}
	req, err := c.newJSONRequest(ctx, http.MethodPut, "/api/conversations/"+conversationID+"/title", body)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// DeleteConversation removes a persisted conversation.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	req, err := c.newJSONRequest(ctx, http.MethodDelete, "/api/conversations/"+conversationID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ── Internals ─────────────────────────────────────────────────────────────────

// postJSON issues a JSON POST to path and decodes the response into out
// (out may be nil to discard the body).
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// newJSONRequest builds a request with a JSON-encoded body (nil body allowed)
// rooted at the client's base URL.
func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: %s: marshal body: %w", path, err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("backend: %s: build request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do attaches auth, executes req and decodes the JSON response into out.
func (c *Client) do(req *http.Request, out any) error {
	token, err := c.tokens(req.Context())
	if err != nil {
		return fmt.Errorf("backend: %s: resolve token: %w", req.URL.Path, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{
			Status:   resp.StatusCode,
			Endpoint: req.URL.Path,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: %s: decode response: %w", req.URL.Path, err)
	}
	return nil
}

// extensionFor maps a clip MIME type onto a filename extension for the
// multipart upload. The backend sniffs content anyway; this is cosmetic.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".pcm"
	}
}
