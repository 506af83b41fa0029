package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GeminiClient talks to the Gemini Files and GenerateContent REST APIs.
// Implements the Provider interface.
type GeminiClient struct {
	baseURL   string // e.g. https://generativelanguage.googleapis.com/v1beta
	uploadURL string // e.g. https://generativelanguage.googleapis.com/upload/v1beta/files
	model     string
	timeout   time.Duration
	client    *http.Client
}

// geminiFile is the File resource returned by upload and get.
type geminiFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	URI      string `json:"uri"`
	State    string `json:"state"` // STATE_UNSPECIFIED, PROCESSING, ACTIVE, FAILED
}

type geminiUploadResponse struct {
	File geminiFile `json:"file"`
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"file_data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// geminiErrorBody is Google's standard error envelope.
type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiClient creates a new Gemini HTTP client.
func NewGeminiClient(baseURL, uploadURL, model string, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		uploadURL: uploadURL,
		model:     model,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (g *GeminiClient) Name() string { return "gemini" }

// Model returns the configured model identifier.
func (g *GeminiClient) Model() string { return g.model }

// Upload sends an audio file using the multipart upload protocol: a JSON
// metadata part followed by the raw media part.
func (g *GeminiClient) Upload(ctx context.Context, credential, audioPath, mimeType string) (*Handle, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// Metadata part
	meta, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, fmt.Errorf("create metadata part: %w", err)
	}
	if err := json.NewEncoder(meta).Encode(map[string]any{
		"file": map[string]string{"display_name": filepath.Base(audioPath)},
	}); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	// Media part
	media, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return nil, fmt.Errorf("create media part: %w", err)
	}
	if _, err := io.Copy(media, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.uploadURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+w.Boundary())
	req.Header.Set("X-Goog-Upload-Protocol", "multipart")

	var result geminiUploadResponse
	if err := g.do(req, credential, &result); err != nil {
		return nil, err
	}
	if result.File.Name == "" {
		return nil, fmt.Errorf("upload response missing file name")
	}
	return result.File.handle(), nil
}

// Status re-reads the File resource behind h.
func (g *GeminiClient) Status(ctx context.Context, credential string, h *Handle) (*Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/"+h.Name, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var result geminiFile
	if err := g.do(req, credential, &result); err != nil {
		return nil, err
	}
	if result.Name == "" {
		result.Name = h.Name
	}
	return result.handle(), nil
}

// Generate asks the model to produce text from the uploaded asset and the
// instruction. All text parts of the first candidate are concatenated.
func (g *GeminiClient) Generate(ctx context.Context, credential string, h *Handle, instruction string) (string, error) {
	body, err := json.Marshal(geminiGenerateRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{FileData: &geminiFileData{MimeType: h.MimeType, FileURI: h.URI}},
				{Text: instruction},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result geminiGenerateResponse
	if err := g.do(req, credential, &result); err != nil {
		return "", err
	}

	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", result.PromptFeedback.BlockReason)
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("response has no candidates")
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// Delete removes the uploaded asset from the remote store.
func (g *GeminiClient) Delete(ctx context.Context, credential string, h *Handle) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, g.baseURL+"/"+h.Name, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return g.do(req, credential, nil)
}

// do sends req with the API key header and decodes a 200 body into out.
func (g *GeminiClient) do(req *http.Request, credential string, out any) error {
	req.Header.Set("x-goog-api-key", credential)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var eb geminiErrorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error.Message != "" {
			apiErr.Message = eb.Error.Message
			apiErr.Status = eb.Error.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (f geminiFile) handle() *Handle {
	state := StateUnknown
	switch f.State {
	case "PROCESSING":
		state = StateProcessing
	case "ACTIVE":
		state = StateReady
	case "FAILED":
		state = StateFailed
	}
	return &Handle{Name: f.Name, URI: f.URI, MimeType: f.MimeType, State: state}
}
