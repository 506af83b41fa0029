package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestGemini(t *testing.T, h http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGeminiClient(srv.URL+"/v1beta", srv.URL+"/upload/v1beta/files", "gemini-test", 5*time.Second)
}

func TestGeminiUpload(t *testing.T) {
	var gotKey, gotProtocol, gotMeta, gotMediaType string
	var gotMedia []byte

	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload/v1beta/files" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("x-goog-api-key")
		gotProtocol = r.Header.Get("X-Goog-Upload-Protocol")

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/related" {
			t.Errorf("Content-Type = %q (%v), want multipart/related", r.Header.Get("Content-Type"), err)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])

		meta, err := mr.NextPart()
		if err != nil {
			t.Error(err)
			return
		}
		b, _ := io.ReadAll(meta)
		gotMeta = string(b)

		media, err := mr.NextPart()
		if err != nil {
			t.Error(err)
			return
		}
		gotMediaType = media.Header.Get("Content-Type")
		gotMedia, _ = io.ReadAll(media)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"file":{"name":"files/abc123","mimeType":"audio/wav","uri":"https://files.test/abc123","state":"PROCESSING"}}`)
	})

	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	h, err := g.Upload(context.Background(), "secret-key", path, "audio/wav")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if gotKey != "secret-key" {
		t.Errorf("api key header = %q, want secret-key", gotKey)
	}
	if gotProtocol != "multipart" {
		t.Errorf("upload protocol = %q, want multipart", gotProtocol)
	}
	if !strings.Contains(gotMeta, `"display_name":"clip.wav"`) {
		t.Errorf("metadata = %q, want display_name clip.wav", gotMeta)
	}
	if gotMediaType != "audio/wav" || string(gotMedia) != "audio-bytes" {
		t.Errorf("media part = %q %q", gotMediaType, gotMedia)
	}
	if h.Name != "files/abc123" || h.URI != "https://files.test/abc123" || h.State != StateProcessing {
		t.Errorf("handle = %+v", h)
	}
}

func TestGeminiUploadRejected(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`)
	})
	path := filepath.Join(t.TempDir(), "clip.wav")
	os.WriteFile(path, []byte("x"), 0o600)

	_, err := g.Upload(context.Background(), "bad", path, "audio/wav")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Status != "INVALID_ARGUMENT" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if !strings.Contains(apiErr.Message, "API key not valid") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestGeminiStatus(t *testing.T) {
	tests := []struct {
		state string
		want  AssetState
	}{
		{"PROCESSING", StateProcessing},
		{"ACTIVE", StateReady},
		{"FAILED", StateFailed},
		{"STATE_UNSPECIFIED", StateUnknown},
		{"", StateUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/v1beta/files/abc123" {
					t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
				}
				json.NewEncoder(w).Encode(map[string]string{
					"name": "files/abc123", "uri": "u", "mimeType": "audio/wav", "state": tt.state,
				})
			})
			h, err := g.Status(context.Background(), "k", &Handle{Name: "files/abc123"})
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if h.State != tt.want {
				t.Errorf("State = %q, want %q", h.State, tt.want)
			}
		})
	}
}

func TestGeminiGenerate(t *testing.T) {
	var req geminiGenerateRequest
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
			return
		}
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"C/O:\n"},{"text":"- Fever x 3 days"}]},"finishReason":"STOP"}]}`)
	})

	text, err := g.Generate(context.Background(), "k",
		&Handle{Name: "files/abc123", URI: "https://files.test/abc123", MimeType: "audio/wav"}, "instruction")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "C/O:\n- Fever x 3 days" {
		t.Errorf("text = %q", text)
	}

	if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
		t.Fatalf("request contents = %+v", req.Contents)
	}
	fd := req.Contents[0].Parts[0].FileData
	if fd == nil || fd.FileURI != "https://files.test/abc123" || fd.MimeType != "audio/wav" {
		t.Errorf("file part = %+v", fd)
	}
	if req.Contents[0].Parts[1].Text != "instruction" {
		t.Errorf("text part = %q", req.Contents[0].Parts[1].Text)
	}
}

func TestGeminiGenerateUnusable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"blocked", `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{"no_candidates", `{"candidates":[]}`},
		{"malformed", `{"candidates":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			})
			if _, err := g.Generate(context.Background(), "k", &Handle{Name: "files/x"}, "i"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGeminiDelete(t *testing.T) {
	var method, path string
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		io.WriteString(w, `{}`)
	})
	if err := g.Delete(context.Background(), "k", &Handle{Name: "files/abc123"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if method != http.MethodDelete || path != "/v1beta/files/abc123" {
		t.Errorf("got %s %s", method, path)
	}
}

func TestGeminiEndToEnd(t *testing.T) {
	checks := 0
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/upload/"):
			io.WriteString(w, `{"file":{"name":"files/e2e","mimeType":"audio/wav","uri":"u","state":"PROCESSING"}}`)
		case r.Method == http.MethodGet:
			checks++
			state := "PROCESSING"
			if checks >= 2 {
				state = "ACTIVE"
			}
			io.WriteString(w, `{"name":"files/e2e","mimeType":"audio/wav","uri":"u","state":"`+state+`"}`)
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"T"}]}}]}`)
		case r.Method == http.MethodDelete:
			io.WriteString(w, `{}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	c, dir := newTestClient(t, g, nil)
	text, err := c.Process(context.Background(), Request{Credential: "k", Audio: wavClip})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if text != "T" {
		t.Errorf("text = %q, want T", text)
	}
	if checks != 2 {
		t.Errorf("status checks = %d, want 2", checks)
	}
	assertDirEmpty(t, dir)
}
