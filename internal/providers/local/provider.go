package local

import (
	"bytes"
	"context"

	"github.com/book-expert/logger"
	"github.com/book-expert/speakctl/internal/atomicfile"
	"github.com/book-expert/speakctl/internal/core"
)

const providerID = "local"

// Resolver resolves a clone-from-path voice reference to a server-side
// voice token, loading it on the fly if not already cached. It is
// implemented by *voicecache.Manager; the dependency runs provider ->
// voicecache, not the reverse, so the local package stays free of the
// cache's journal/identity concerns.
type Resolver interface {
	EnsureLoaded(ctx context.Context, path string) (string, error)
}

// Config holds the Local provider's construction-time settings.
type Config struct {
	Server   ServerConfig
	Resolver Resolver
}

// Provider implements core.Provider against the persistent local
// synthesis server described in SPEC_FULL §4.9/§6.
type Provider struct {
	client   *client
	resolver Resolver
}

// New constructs a Provider.
func New(cfg Config, log *logger.Logger) *Provider {
	return &Provider{
		client:   newClient(cfg.Server, log),
		resolver: cfg.Resolver,
	}
}

// SetResolver wires the voice-cache resolver after construction. The
// voicecache.Manager cannot exist before the Provider it wraps as a
// ServerLoader does, so the two are built in two steps and joined here.
func (p *Provider) SetResolver(r Resolver) {
	p.resolver = r
}

// Describe returns the Local provider's static metadata.
func (p *Provider) Describe() core.ProviderDescriptor {
	return core.ProviderDescriptor{
		ID:                providerID,
		DisplayName:       "Local Neural",
		RequiresNetwork:   false,
		RequiresAPIKey:    false,
		SupportedFormats:  []core.AudioFormat{core.FormatWAV, core.FormatMP3},
		SupportsStreaming: true,
		SupportsCloning:   true,
		SupportsSSML:      false,
	}
}

// Synthesize implements core.Provider. The voice reference is either a
// named server-side voice id or a clone-from-path reference resolved
// on-the-fly via the Resolver (SPEC_FULL §4.9 "Clone-from-path without a
// cache entry triggers an on-the-fly load").
func (p *Provider) Synthesize(ctx context.Context, req core.TextRequest, target core.SynthesisTarget) error {
	cmd := command{
		Action:  "synthesize",
		Text:    req.Text,
		Options: req.ProviderOptions,
	}

	switch req.Voice.Kind {
	case core.VoiceCloneFrom:
		if p.resolver == nil {
			return core.NewInternalError("local provider has no voice-cache resolver configured", nil)
		}

		token, err := p.resolver.EnsureLoaded(ctx, req.Voice.Path)
		if err != nil {
			return err
		}

		cmd.VoicePath = req.Voice.Path
		cmd.VoiceID = token
	case core.VoiceNamed:
		cmd.VoiceID = req.Voice.VoiceName
	default:
		// VoiceDefault: leave VoiceID empty, server uses its own default.
	}

	if target.Streaming() {
		return p.client.sendSynthesize(ctx, cmd, func(frame []byte) error {
			_, err := target.Writer.Write(frame)
			if err != nil {
				return core.NewInternalError("failed to write synthesized frame to sink", err)
			}

			return nil
		})
	}

	var buf bytes.Buffer

	if err := p.client.sendSynthesize(ctx, cmd, func(frame []byte) error {
		_, err := buf.Write(frame)

		return err
	}); err != nil {
		return err
	}

	if err := atomicfile.WriteFromReader(target.Path, bytes.NewReader(buf.Bytes())); err != nil {
		return core.NewInternalError("failed to write local synthesis audio to path", err)
	}

	return nil
}

// ListVoices asks the server for its currently loaded voice set.
func (p *Provider) ListVoices(ctx context.Context) ([]core.VoiceRecord, error) {
	r, err := p.client.sendCommand(ctx, command{Action: "list_voices"})
	if err != nil {
		return nil, err
	}

	voices := make([]core.VoiceRecord, 0, len(r.Voices))

	for _, v := range r.Voices {
		voices = append(voices, core.VoiceRecord{Name: v})
	}

	return voices, nil
}

// ValidateOptions implements core.Provider; the local provider passes
// option maps through to the server unvalidated, since the server-side
// model's tunables are outside this codebase's contract.
func (p *Provider) ValidateOptions(opts map[string]any) (map[string]any, error) {
	return opts, nil
}

// LoadVoice asks the server to create a reference for the audio file at
// path and returns the server-issued token. It satisfies
// voicecache.ServerLoader structurally, without this package importing
// voicecache.
func (p *Provider) LoadVoice(ctx context.Context, path string) (string, error) {
	r, err := p.client.sendCommand(ctx, command{Action: "load_voice", VoicePath: path})
	if err != nil {
		return "", err
	}

	return r.VoiceID, nil
}

// UnloadVoice releases a previously loaded server-side reference.
func (p *Provider) UnloadVoice(ctx context.Context, token string) error {
	_, err := p.client.sendCommand(ctx, command{Action: "unload_voice", VoiceID: token})

	return err
}

// UnloadAll releases every server-side reference and returns the count
// released.
func (p *Provider) UnloadAll(ctx context.Context) (int, error) {
	r, err := p.client.sendCommand(ctx, command{Action: "unload_all"})
	if err != nil {
		return 0, err
	}

	return r.UnloadedCount, nil
}
