package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parlancehq/parlance/pkg/audio"
)

func testClip() *audio.Clip {
	return &audio.Clip{
		Data:       []byte("pcm-bytes"),
		MIMEType:   "audio/webm",
		SampleRate: 16000,
		Channels:   1,
		Duration:   2 * time.Second,
	}
}

func TestTranscribe_SendsMultipartAndAuth(t *testing.T) {
	t.Parallel()

	var gotAuth, gotLanguage string
	var gotClip []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transcribe_only" {
			t.Errorf("path: want /api/transcribe_only, got %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotLanguage = r.FormValue("language")
		f, _, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		buf := make([]byte, 64)
		n, _ := f.Read(buf)
		gotClip = buf[:n]
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcription":"Hola","romanized_text":""}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithTokenSource(StaticToken("tok-123")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := c.Transcribe(context.Background(), testClip(), "es")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Transcription != "Hola" {
		t.Errorf("transcription: want %q, got %q", "Hola", res.Transcription)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("auth header: want %q, got %q", "Bearer tok-123", gotAuth)
	}
	if gotLanguage != "es" {
		t.Errorf("language field: want es, got %q", gotLanguage)
	}
	if string(gotClip) != "pcm-bytes" {
		t.Errorf("clip body: want pcm-bytes, got %q", gotClip)
	}
}

func TestTranscribe_EmptyClip(t *testing.T) {
	t.Parallel()

	c, err := New("http://backend.invalid")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Transcribe(context.Background(), &audio.Clip{}, "es"); err == nil {
		t.Fatal("expected error for empty clip")
	}
}

func TestAIResponse_AlternateFieldNames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"response", `{"response":"Bien hecho"}`, "Bien hecho"},
		{"ai_response", `{"ai_response":"Muy bien"}`, "Muy bien"},
		{"message", `{"message":"Claro"}`, "Claro"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := New(srv.URL)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			got, err := c.AIResponse(context.Background(), AIResponseRequest{Transcription: "Hola", Language: "es"})
			if err != nil {
				t.Fatalf("AIResponse: %v", err)
			}
			if got != tc.want {
				t.Errorf("reply: want %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAIResponse_EmptyReply(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	if _, err := c.AIResponse(context.Background(), AIResponseRequest{}); err == nil {
		t.Fatal("expected error for empty reply")
	}
}

func TestDo_NonOKStatusReturnsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Translate(context.Background(), TranslateRequest{Text: "hello", Target: "es"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("status: want 502, got %d", apiErr.Status)
	}
	if apiErr.Endpoint != "/api/translate" {
		t.Errorf("endpoint: want /api/translate, got %s", apiErr.Endpoint)
	}
}

func TestProbeURL(t *testing.T) {
	t.Parallel()

	ready := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method: want HEAD, got %s", r.Method)
		}
		if !ready {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	if err := c.ProbeURL(context.Background(), srv.URL+"/audio/abc.mp3"); err == nil {
		t.Fatal("expected probe failure before object exists")
	}
	ready = true
	if err := c.ProbeURL(context.Background(), srv.URL+"/audio/abc.mp3"); err != nil {
		t.Fatalf("probe after ready: %v", err)
	}
}

func TestCreateConversation_RequiresID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"language":"es"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	if _, err := c.CreateConversation(context.Background(), CreateConversationRequest{Language: "es"}); err == nil {
		t.Fatal("expected error when backend omits conversation id")
	}
}

func TestConversationCRUDPaths(t *testing.T) {
	t.Parallel()

	var paths []string
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		methods = append(methods, r.Method)
		w.Write([]byte(`{"id":"c1","language":"es"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	ctx := context.Background()
	if _, err := c.GetConversation(ctx, "c1"); err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if err := c.AddMessage(ctx, "c1", ConversationMessage{Sender: "user", Text: "Hola"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := c.UpdateTitle(ctx, "c1", "First chat"); err != nil {
		t.Fatalf("UpdateTitle: %v", err)
	}
	if err := c.DeleteConversation(ctx, "c1"); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	wantPaths := []string{
		"/api/conversations/c1",
		"/api/conversations/c1/messages",
		"/api/conversations/c1/title",
		"/api/conversations/c1",
	}
	wantMethods := []string{"GET", "POST", "PUT", "DELETE"}
	for i := range wantPaths {
		if paths[i] != wantPaths[i] {
			t.Errorf("call %d path: want %s, got %s", i, wantPaths[i], paths[i])
		}
		if methods[i] != wantMethods[i] {
			t.Errorf("call %d method: want %s, got %s", i, wantMethods[i], methods[i])
		}
	}
}

func TestIsFallbackTranscription(t *testing.T) {
	t.Parallel()

	if !IsFallbackTranscription("I couldn't hear anything clearly.") {
		t.Error("exact sentinel not recognised")
	}
	if !IsFallbackTranscription("  I couldn't hear anything clearly.\n") {
		t.Error("padded sentinel not recognised")
	}
	if IsFallbackTranscription("Hola, ¿qué tal?") {
		t.Error("real transcription misclassified as sentinel")
	}
}
