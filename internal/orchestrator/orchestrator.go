// Package orchestrator implements the Synthesis Orchestrator (SPEC_FULL
// §4.16), the single end-to-end driver every caller (the CLI, C18) goes
// through. It wires together the document pipeline (C11-C15), the provider
// registry (C4), the playback manager (C1), and the transcoder (C2) behind
// one synchronous Synthesize call, grounded on the teacher's
// internal/tts/processor.go Process method for the "normalise, resolve,
// invoke, handle the result" shape of a single-request driver.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speakctl/internal/core"
	"github.com/book-expert/speakctl/internal/document"
	"github.com/book-expert/speakctl/internal/playback"
	"github.com/book-expert/speakctl/internal/providers"
	"github.com/book-expert/speakctl/internal/transcode"
)

// retryAttempts and retryBackoff implement SPEC_FULL §4.16 step 5: up to
// N=2 retries on a retriable error, with the given backoff before each.
const retryAttempts = 2

// localProviderID is the only registry id whose provider supports voice
// cloning (SPEC_FULL §4.4 step 2, §4.9).
const localProviderID = "local"

var retryBackoff = []time.Duration{250 * time.Millisecond, 1 * time.Second}

// Request is the orchestrator's entry-point input: either plain text or a
// raw document body, plus every knob the CLI (C18) exposes.
type Request struct {
	Text     string
	Document string // non-empty selects document mode (C11-C15 pipeline)

	Voice core.VoiceRef
	Rate  core.RateAdjust
	Pitch core.PitchAdjust

	Format core.AudioFormat
	Stream bool
	Output string // required when !Stream

	SSML           bool
	SSMLPlatform   document.Platform
	EmotionProfile document.EmotionProfile

	ProviderOptions map[string]any
}

// Orchestrator is constructed once per process and reused across
// synthesis calls; it holds no per-request state.
type Orchestrator struct {
	registry        *providers.Registry
	playback        *playback.Manager
	transcoder      *transcode.Transcoder
	documentCache   *document.Cache
	defaultProvider string
	log             *logger.Logger
}

// New constructs an Orchestrator. documentCache may be nil, in which case
// document mode skips caching entirely and re-parses every call.
func New(registry *providers.Registry, pb *playback.Manager, tc *transcode.Transcoder, documentCache *document.Cache, defaultProvider string, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		registry:        registry,
		playback:        pb,
		transcoder:      tc,
		documentCache:   documentCache,
		defaultProvider: defaultProvider,
		log:             log,
	}
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.log == nil {
		return
	}

	o.log.Info(format, args...)
}

func (o *Orchestrator) warnf(format string, args ...any) {
	if o.log == nil {
		return
	}

	o.log.Warn(format, args...)
}

// Synthesize runs the full SPEC_FULL §4.16 algorithm: normalise input,
// resolve the provider, validate/downgrade against its descriptor, invoke
// Synthesize with a bounded retry policy, and route the result to req's
// destination.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) error {
	annotated, isDocument, err := o.normalise(req)
	if err != nil {
		return err
	}

	providerID, err := o.resolveProviderID(req.Voice)
	if err != nil {
		return err
	}

	provider, err := o.registry.Resolve(providerID)
	if err != nil {
		return err
	}

	descriptor := provider.Describe()
	if req.Voice.Kind == core.VoiceCloneFrom && !descriptor.SupportsCloning {
		return core.NewVoiceError(providerID, "provider does not support voice cloning", nil)
	}

	o.logf("provider resolved: id=%s stream_requested=%t format_requested=%s", providerID, req.Stream, req.Format)

	text := req.Text

	if isDocument {
		if req.SSML && descriptor.SupportsSSML {
			text = document.EmitSSML(annotated, req.SSMLPlatform)
		} else {
			if req.SSML {
				o.logf("provider does not support SSML, falling back to plain text: id=%s", providerID)
			}

			text = document.EmitPlainText(annotated)
		}
	}

	validatedOpts, err := provider.ValidateOptions(req.ProviderOptions)
	if err != nil {
		return err
	}

	format := req.Format
	if format == "" {
		format = core.DefaultAudioFormat
	}

	effectiveFormat := format
	needsTranscode := !descriptor.SupportsFormat(format)

	if needsTranscode {
		effectiveFormat = firstSupportedFormat(descriptor)
		o.logf("downgrade applied: format %s unsupported by %s, synthesising %s then transcoding", format, providerID, effectiveFormat)
	}

	effectiveStream := req.Stream && descriptor.SupportsStreaming
	if req.Stream && !effectiveStream {
		o.logf("downgrade applied: stream requested but %s does not support streaming, falling back to file-then-play", providerID)
	}

	synthReq := core.TextRequest{
		Text:            text,
		Voice:           req.Voice,
		Rate:            req.Rate,
		Pitch:           req.Pitch,
		Format:          effectiveFormat,
		Stream:          effectiveStream,
		ProviderOptions: validatedOpts,
	}

	if effectiveStream {
		return o.synthesizeStreaming(ctx, provider, synthReq)
	}

	return o.synthesizeToFile(ctx, provider, synthReq, req, needsTranscode, format, effectiveFormat)
}

// normalise implements step 1: plain-text requests carry no annotated
// elements (the caller falls back to req.Text); document requests run
// C11->C15->C12->C13, returning the classified element sequence the
// caller emits as SSML or plain text once it knows whether the resolved
// provider supports SSML (C14 runs after provider resolution, in
// Synthesize).
func (o *Orchestrator) normalise(req Request) (annotated []document.AnnotatedElement, isDocument bool, err error) {
	if req.Document == "" {
		return nil, false, nil
	}

	formatHint := document.DetectFormat(req.Document)

	markdown, convErr := document.ToMarkdown(req.Document)
	if convErr != nil {
		return nil, true, core.NewInternalError("failed to normalise document to markdown", convErr)
	}

	cacheKey := ""
	if o.documentCache != nil {
		cacheKey = document.CacheKey(markdown, formatHint, req.SSMLPlatform, req.EmotionProfile)

		if cached, ok := o.documentCache.Get(cacheKey); ok {
			return cached, true, nil
		}
	}

	elements := document.Parse(markdown)
	annotated = document.Classify(elements, req.EmotionProfile)

	if o.documentCache != nil {
		if putErr := o.documentCache.Put(cacheKey, annotated); putErr != nil {
			o.warnf("document cache put failed, continuing without caching: %v", putErr)
		}
	}

	return annotated, true, nil
}

// resolveProviderID implements step 2: a Named reference carries its
// provider explicitly; CloneFrom always resolves to the local neural
// provider, the only clone-capable back-end (SPEC_FULL §4.4 step 2); a
// Default reference falls back to the configured default provider.
func (o *Orchestrator) resolveProviderID(voice core.VoiceRef) (string, error) {
	switch voice.Kind {
	case core.VoiceNamed:
		return voice.ProviderID, nil
	case core.VoiceCloneFrom:
		return localProviderID, nil
	default:
		if o.defaultProvider == "" {
			return "", core.NewInternalError("no default provider configured", nil)
		}

		return o.defaultProvider, nil
	}
}

func firstSupportedFormat(d core.ProviderDescriptor) core.AudioFormat {
	if len(d.SupportedFormats) == 0 {
		return core.DefaultAudioFormat
	}

	return d.SupportedFormats[0]
}

func (o *Orchestrator) synthesizeStreaming(ctx context.Context, provider core.Provider, req core.TextRequest) error {
	writer, err := o.playback.OpenStream(ctx, req.Format)
	if err != nil {
		return err
	}

	target := core.SynthesisTarget{Writer: writer}

	synthErr := o.withRetry(ctx, func() error {
		return provider.Synthesize(ctx, req, target)
	})

	closeErr := writer.Close()

	if synthErr != nil {
		return synthErr
	}

	if closeErr != nil {
		return core.NewInternalError("failed to finalize streamed playback", closeErr)
	}

	return nil
}

func (o *Orchestrator) synthesizeToFile(ctx context.Context, provider core.Provider, synthReq core.TextRequest, req Request, needsTranscode bool, wantedFormat, synthFormat core.AudioFormat) error {
	outputPath := req.Output
	if outputPath == "" {
		outputPath = tempOutputPath(wantedFormat)
	}

	synthPath := outputPath
	if needsTranscode {
		synthPath = tempOutputPath(synthFormat)
		defer os.Remove(synthPath)
	}

	target := core.SynthesisTarget{Path: synthPath}

	err := o.withRetry(ctx, func() error {
		return provider.Synthesize(ctx, synthReq, target)
	})
	if err != nil {
		return err
	}

	if needsTranscode {
		if transErr := o.transcoder.Transcode(ctx, synthPath, outputPath, wantedFormat, 0); transErr != nil {
			return transErr
		}
	}

	if req.Stream {
		// Stream was requested but downgraded to file-then-play (step 3).
		return o.playback.PlayFile(ctx, outputPath, req.Output == "", 0)
	}

	return nil
}

// tempOutputPath allocates a unique path for a synthesis the caller did not
// name explicitly. The provider writes its own temp-file-then-rename onto
// this path (atomicfile), so the placeholder file created to reserve the
// name is removed immediately; only the name itself is kept.
func tempOutputPath(format core.AudioFormat) string {
	f, err := os.CreateTemp("", "speakctl-*"+format.Extension())
	if err != nil {
		return filepath.Join(os.TempDir(), "speakctl-fallback"+format.Extension())
	}

	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	return name
}

// withRetry implements step 5: retriable errors are retried up to
// retryAttempts times with the fixed backoff schedule; everything else
// (including context cancellation) surfaces immediately.
func (o *Orchestrator) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= retryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return core.NewCancelledError("synthesis cancelled", ctx.Err())
		}

		if !core.IsRetriable(lastErr) || attempt == retryAttempts {
			return lastErr
		}

		backoff := retryBackoff[attempt]
		o.warnf("retriable error, retrying in %s: %v", backoff, lastErr)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return core.NewCancelledError("synthesis cancelled during retry backoff", ctx.Err())
		}
	}

	return lastErr
}
