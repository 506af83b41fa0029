package transcribe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultAudioType = "audio/wav"

// audioType sniffs the container format of data. declared (typically the
// browser-supplied Content-Type) is used when sniffing finds nothing audio-like.
// Returns the MIME type and a file extension including the dot.
func audioType(data []byte, declared string) (string, string) {
	m := mimetype.Detect(data)
	switch {
	case m.Is("video/webm"):
		// MediaRecorder output; audio-only in practice.
		return "audio/webm", ".webm"
	case strings.HasPrefix(m.String(), "audio/"):
		return m.String(), m.Extension()
	}

	if base, _, _ := strings.Cut(declared, ";"); strings.HasPrefix(strings.TrimSpace(base), "audio/") {
		base = strings.TrimSpace(base)
		ext := ".audio"
		if byType := mimetype.Lookup(base); byType != nil {
			ext = byType.Extension()
		}
		return base, ext
	}
	return defaultAudioType, ".wav"
}

// stageAudio writes data to a new temporary file in dir and returns its path
// plus a cleanup function that removes it. Cleanup is safe to call more than
// once; a file that is already gone is not an error.
func stageAudio(dir string, data []byte, ext string) (string, func() error, error) {
	f, err := os.CreateTemp(dir, "opd-scribe-consultation-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	cleanup := func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove temp file: %w", err)
		}
		return nil
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return path, cleanup, nil
}
