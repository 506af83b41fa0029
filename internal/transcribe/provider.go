package transcribe

import "context"

// Provider is the interface for the remote analysis engine. Audio is uploaded
// once, polled until the engine has ingested it, then referenced by a single
// generation request.
type Provider interface {
	Upload(ctx context.Context, credential, audioPath, mimeType string) (*Handle, error)
	Status(ctx context.Context, credential string, h *Handle) (*Handle, error)
	Generate(ctx context.Context, credential string, h *Handle, instruction string) (string, error)
	Delete(ctx context.Context, credential string, h *Handle) error
	Name() string  // "gemini"
	Model() string // model identifier for logs
}

// AssetState is the readiness of an uploaded asset.
type AssetState string

const (
	StateProcessing AssetState = "processing"
	StateReady      AssetState = "ready"
	StateFailed     AssetState = "failed"
	StateUnknown    AssetState = "unknown"
)

// Handle is an opaque reference to an uploaded asset.
type Handle struct {
	Name     string // provider-side identifier, e.g. "files/abc123"
	URI      string // reference passed back on generation
	MimeType string
	State    AssetState
}
