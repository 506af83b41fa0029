package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/opd-scribe/internal/style"
)

// Phase is the state of one consultation run:
// idle -> uploading -> processing -> generating -> succeeded | failed.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseUploading  Phase = "uploading"
	PhaseProcessing Phase = "processing"
	PhaseGenerating Phase = "generating"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Transition is reported each time a run changes phase.
type Transition struct {
	From    Phase
	To      Phase
	Elapsed time.Duration // time spent in From
	Kind    Kind          // set when To is PhaseFailed
}

// Request is one consultation submission.
type Request struct {
	Credential string
	Audio      []byte
	MimeType   string // declared content type, used when sniffing is inconclusive
	Style      style.Config
}

// ClientOptions configures the consultation client.
type ClientOptions struct {
	Provider  Provider
	Languages Languages
	TempDir   string // "" = os.TempDir()

	PollInterval    time.Duration // first wait between readiness checks
	PollMaxInterval time.Duration // backoff cap per wait
	PollMaxAttempts uint          // readiness re-checks after upload; 0 = unlimited
	PollMaxWait     time.Duration // total poll budget; 0 = backoff library default

	OnTransition func(Transition)
	OnPoll       func(checks int)
	Log          zerolog.Logger
}

// Client runs the upload -> poll -> generate workflow against a Provider.
// Each Process call is independent; callers that need single-flight per
// session must gate calls themselves.
type Client struct {
	provider Provider
	composer *Composer
	opts     ClientOptions
	log      zerolog.Logger
}

// NewClient creates a consultation client.
func NewClient(opts ClientOptions) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.PollMaxInterval < opts.PollInterval {
		opts.PollMaxInterval = opts.PollInterval
	}
	return &Client{
		provider: opts.Provider,
		composer: NewComposer(opts.Languages),
		opts:     opts,
		log:      opts.Log,
	}
}

// Composer returns the instruction composer used by the client.
func (c *Client) Composer() *Composer { return c.composer }

// Provider returns the remote engine the client talks to.
func (c *Client) Provider() Provider { return c.provider }

// run tracks the phase of a single Process call.
type run struct {
	c       *Client
	phase   Phase
	entered time.Time
}

func (r *run) to(next Phase, kind Kind) {
	now := time.Now()
	t := Transition{From: r.phase, To: next, Elapsed: now.Sub(r.entered), Kind: kind}
	r.phase, r.entered = next, now
	if r.c.opts.OnTransition != nil {
		r.c.opts.OnTransition(t)
	}
}

func (r *run) fail(kind Kind, err error) error {
	return &Error{Kind: kind, Phase: r.phase, Err: err}
}

// Process converts one recording into a case note. On failure the returned
// error is always an *Error and the text is empty. The staged audio file is
// removed before Process returns on every path.
func (c *Client) Process(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	r := &run{c: c, phase: PhaseIdle, entered: start}

	text, err := c.process(ctx, r, req)

	if err != nil {
		kind := KindOf(err)
		r.to(PhaseFailed, kind)
		c.log.Warn().Err(err).
			Str("kind", string(kind)).
			Dur("elapsed", time.Since(start)).
			Msg("consultation failed")
		return "", err
	}

	r.to(PhaseSucceeded, "")
	c.log.Info().
		Int("note_chars", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("consultation complete")
	return text, nil
}

func (c *Client) process(ctx context.Context, r *run, req Request) (text string, err error) {
	// 0. Credential gate: nothing is staged or sent without a key.
	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		return "", r.fail(KindCredential, ErrMissingCredential)
	}
	if len(req.Audio) == 0 {
		return "", r.fail(KindUpload, ErrEmptyAudio)
	}

	// 1. Stage and upload
	r.to(PhaseUploading, "")
	mimeType, ext := audioType(req.Audio, req.MimeType)
	path, cleanup, stageErr := stageAudio(c.opts.TempDir, req.Audio, ext)
	if stageErr != nil {
		return "", r.fail(KindLocalResource, stageErr)
	}
	defer func() {
		if cerr := cleanup(); cerr != nil {
			c.log.Error().Err(cerr).Msg("failed to remove staged audio")
			if err == nil {
				text, err = "", r.fail(KindLocalResource, cerr)
			}
		}
	}()

	handle, upErr := c.provider.Upload(ctx, credential, path, mimeType)
	if upErr != nil {
		return "", r.fail(KindUpload, fmt.Errorf("upload: %w", upErr))
	}
	c.log.Debug().
		Str("asset", handle.Name).
		Str("mime", mimeType).
		Int("bytes", len(req.Audio)).
		Msg("audio uploaded")

	// The remote copy is dropped once this run is over, whatever the outcome.
	defer c.discard(ctx, credential, handle)

	// 2. Wait for the engine to ingest the asset
	r.to(PhaseProcessing, "")
	ready, pollErr := c.awaitReady(ctx, credential, handle)
	if pollErr != nil {
		var e *Error
		if errors.As(pollErr, &e) {
			return "", pollErr
		}
		return "", r.fail(KindUpload, pollErr)
	}

	// 3. Generate
	r.to(PhaseGenerating, "")
	instruction := c.composer.Compose(req.Style)
	out, genErr := c.provider.Generate(ctx, credential, ready, instruction)
	if genErr != nil {
		return "", r.fail(KindGeneration, fmt.Errorf("generate: %w", genErr))
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", r.fail(KindGeneration, ErrEmptyResponse)
	}
	return out, nil
}

// awaitReady polls h until the engine reports it ready. Waits grow
// exponentially from PollInterval up to PollMaxInterval and stop after
// PollMaxAttempts checks or PollMaxWait, whichever comes first.
func (c *Client) awaitReady(ctx context.Context, credential string, h *Handle) (*Handle, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.opts.PollInterval,
		RandomizationFactor: 0,
		Multiplier:          1.5,
		MaxInterval:         c.opts.PollMaxInterval,
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if c.opts.PollMaxWait > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.opts.PollMaxWait))
	}
	if c.opts.PollMaxAttempts > 0 {
		// The first evaluation reads the upload response; each retry is one check.
		opts = append(opts, backoff.WithMaxTries(c.opts.PollMaxAttempts+1))
	}

	current := h
	checks := 0
	evaluated := false
	op := func() (*Handle, error) {
		if evaluated {
			checks++
			next, err := c.provider.Status(ctx, credential, current)
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("status %s: %w", current.Name, err))
			}
			current = next
		}
		evaluated = true

		switch current.State {
		case StateReady:
			return current, nil
		case StateProcessing:
			return nil, errStillProcessing
		default:
			return nil, backoff.Permanent(fmt.Errorf("asset %s entered state %q", current.Name, current.State))
		}
	}

	ready, err := backoff.Retry(ctx, op, opts...)
	if c.opts.OnPoll != nil {
		c.opts.OnPoll(checks)
	}
	if err == nil {
		c.log.Debug().Str("asset", ready.Name).Int("checks", checks).Msg("asset ready")
		return ready, nil
	}

	if errors.Is(err, errStillProcessing) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, &Error{
			Kind:  KindPollTimeout,
			Phase: PhaseProcessing,
			Err:   fmt.Errorf("asset %s not ready after %d checks: %w", h.Name, checks, err),
		}
	}
	return nil, err
}

// discard deletes the remote asset. Failures are logged, not surfaced.
func (c *Client) discard(ctx context.Context, credential string, h *Handle) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.provider.Delete(dctx, credential, h); err != nil {
		c.log.Warn().Err(err).Str("asset", h.Name).Msg("failed to delete remote asset")
	}
}
