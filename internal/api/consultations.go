package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
	"github.com/snarg/opd-scribe/internal/metrics"
	"github.com/snarg/opd-scribe/internal/style"
	"github.com/snarg/opd-scribe/internal/transcribe"
)

// Processor turns one recording into a case note.
type Processor interface {
	Process(ctx context.Context, req transcribe.Request) (string, error)
}

// StyleDefaults supplies the profile used for style fields a submission omits.
type StyleDefaults interface {
	Defaults() style.Config
	Source() string
}

// ConsultationHandler serves the consultation submission and the
// per-session case note.
type ConsultationHandler struct {
	proc          Processor
	styles        StyleDefaults
	defaultKey    string
	maxAudioBytes int64
}

// NewConsultationHandler creates a consultation handler. defaultKey is used
// when a submission carries no api_key field.
func NewConsultationHandler(proc Processor, styles StyleDefaults, defaultKey string, maxAudioBytes int64) *ConsultationHandler {
	return &ConsultationHandler{
		proc:          proc,
		styles:        styles,
		defaultKey:    defaultKey,
		maxAudioBytes: maxAudioBytes,
	}
}

// CaseNoteResponse carries the session's current case note.
type CaseNoteResponse struct {
	CaseNote string `json:"case_note"`
}

type caseNoteUpdate struct {
	CaseNote *string `json:"case_note"`
}

// multipart overhead allowed on top of the audio itself
const formSlack = 1 << 20

// Submit handles POST /api/v1/consultations.
func (h *ConsultationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	holder := HolderFrom(r.Context())
	if holder == nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "no session")
		return
	}
	if !holder.TryBegin() {
		metrics.RejectedSubmissionsTotal.Inc()
		WriteErrorWithCode(w, http.StatusConflict, ErrInFlight, "a consultation is already being processed for this session")
		return
	}
	defer holder.End()

	log := hlog.FromRequest(r)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudioBytes+formSlack)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, ErrAudioTooLarge, "recording is too large")
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrMissingAudio, "no audio recording in submission")
		return
	}
	audio, err := io.ReadAll(io.LimitReader(file, h.maxAudioBytes+1))
	file.Close()
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "could not read audio recording")
		return
	}
	if int64(len(audio)) > h.maxAudioBytes {
		WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, ErrAudioTooLarge, "recording is too large")
		return
	}

	credential := strings.TrimSpace(r.FormValue("api_key"))
	if credential == "" {
		credential = h.defaultKey
	}

	profile, defaulted := styleFromForm(r.MultipartForm.Value, h.styles.Defaults())

	log.Info().
		Int("audio_bytes", len(audio)).
		Str("declared_type", header.Header.Get("Content-Type")).
		Strs("defaulted_fields", defaulted).
		Strs("empty_fields", profile.Blank()).
		Msg("consultation submitted")

	text, err := h.proc.Process(r.Context(), transcribe.Request{
		Credential: credential,
		Audio:      audio,
		MimeType:   header.Header.Get("Content-Type"),
		Style:      profile,
	})
	if err != nil {
		writeProcessError(w, err)
		return
	}

	holder.Set(text)
	WriteJSON(w, http.StatusCreated, CaseNoteResponse{CaseNote: text})
}

// styleFromForm builds the style profile from the submitted fields. Only
// fields absent from the form take the default; a field sent empty stays
// empty so a cleared example is never replaced by the built-in one.
func styleFromForm(values map[string][]string, defaults style.Config) (style.Config, []string) {
	profile := defaults
	var defaulted []string
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"doctor_name", &profile.DoctorName},
		{"specialty", &profile.Specialty},
		{"format_instructions", &profile.FormatInstructions},
		{"abbreviations", &profile.Abbreviations},
		{"example_case", &profile.ExampleCase},
	} {
		v, ok := values[f.key]
		if !ok || len(v) == 0 {
			defaulted = append(defaulted, f.key)
			continue
		}
		*f.dst = v[0]
	}
	return profile, defaulted
}

func writeProcessError(w http.ResponseWriter, err error) {
	var perr *transcribe.Error
	if !errors.As(err, &perr) {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "consultation failed")
		return
	}

	status, msg := http.StatusInternalServerError, "consultation failed"
	switch perr.Kind {
	case transcribe.KindCredential:
		status, msg = http.StatusBadRequest, "an API key is required to process the recording"
	case transcribe.KindUpload:
		status, msg = http.StatusBadGateway, "the recording could not be uploaded or processed"
		if errors.Is(err, transcribe.ErrEmptyAudio) {
			status, msg = http.StatusBadRequest, "the recording is empty"
		}
	case transcribe.KindPollTimeout:
		status, msg = http.StatusGatewayTimeout, "the recording was not ready in time"
	case transcribe.KindGeneration:
		status, msg = http.StatusBadGateway, "the case note could not be generated"
	case transcribe.KindLocalResource:
		status, msg = http.StatusInternalServerError, "the recording could not be stored temporarily"
	}

	WriteJSON(w, status, ErrorResponse{
		Error:  msg,
		Code:   string(perr.Kind),
		Phase:  string(perr.Phase),
		Detail: perr.Err.Error(),
	})
}

// GetCaseNote handles GET /api/v1/case-note.
func (h *ConsultationHandler) GetCaseNote(w http.ResponseWriter, r *http.Request) {
	holder := HolderFrom(r.Context())
	if holder == nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "no session")
		return
	}
	WriteJSON(w, http.StatusOK, CaseNoteResponse{CaseNote: holder.Get()})
}

// PutCaseNote handles PUT /api/v1/case-note. The body replaces the held
// note verbatim, including an empty string.
func (h *ConsultationHandler) PutCaseNote(w http.ResponseWriter, r *http.Request) {
	holder := HolderFrom(r.Context())
	if holder == nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "no session")
		return
	}

	var body caseNoteUpdate
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid JSON body")
		return
	}
	if body.CaseNote == nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "case_note is required")
		return
	}

	holder.Set(*body.CaseNote)
	WriteJSON(w, http.StatusOK, CaseNoteResponse{CaseNote: holder.Get()})
}

// ResetCaseNote handles DELETE /api/v1/case-note.
func (h *ConsultationHandler) ResetCaseNote(w http.ResponseWriter, r *http.Request) {
	holder := HolderFrom(r.Context())
	if holder == nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "no session")
		return
	}
	holder.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// StyleDefaultsResponse is returned by GET /api/v1/style/defaults.
type StyleDefaultsResponse struct {
	Source   string       `json:"source"`
	Defaults style.Config `json:"defaults"`
}

// GetStyleDefaults handles GET /api/v1/style/defaults.
func (h *ConsultationHandler) GetStyleDefaults(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, StyleDefaultsResponse{
		Source:   h.styles.Source(),
		Defaults: h.styles.Defaults(),
	})
}
