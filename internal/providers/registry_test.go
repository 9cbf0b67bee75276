package providers_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/speakctl/internal/core"
	"github.com/book-expert/speakctl/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	descriptor core.ProviderDescriptor
	voices     []core.VoiceRecord
	loadCalls  *int
}

func (f *fakeProvider) Describe() core.ProviderDescriptor { return f.descriptor }

func (f *fakeProvider) Synthesize(_ context.Context, _ core.TextRequest, _ core.SynthesisTarget) error {
	return nil
}

func (f *fakeProvider) ListVoices(_ context.Context) ([]core.VoiceRecord, error) {
	return f.voices, nil
}

func (f *fakeProvider) ValidateOptions(opts map[string]any) (map[string]any, error) {
	return opts, nil
}

func newTestRegistry(t *testing.T) *providers.Registry {
	t.Helper()

	reg := providers.NewRegistry()

	reg.Register("edge", func() (core.Provider, error) {
		return &fakeProvider{
			descriptor: core.ProviderDescriptor{ID: "edge"},
			voices:     []core.VoiceRecord{{Name: "en-US-AriaNeural"}},
		}, nil
	}, "edge")

	reg.Register("openai", func() (core.Provider, error) {
		return &fakeProvider{
			descriptor: core.ProviderDescriptor{ID: "openai"},
			voices:     []core.VoiceRecord{{Name: "alloy"}, {Name: "shared-name"}},
		}, nil
	}, "openai", "oai")

	reg.Register("elevenlabs", func() (core.Provider, error) {
		return &fakeProvider{
			descriptor: core.ProviderDescriptor{ID: "elevenlabs"},
			voices:     []core.VoiceRecord{{Name: "shared-name"}},
		}, nil
	}, "elevenlabs", "el")

	return reg
}

func TestResolveLazyLoadsAndCaches(t *testing.T) {
	t.Parallel()

	calls := 0
	reg := providers.NewRegistry()
	reg.Register("edge", func() (core.Provider, error) {
		calls++

		return &fakeProvider{descriptor: core.ProviderDescriptor{ID: "edge"}}, nil
	}, "edge")

	_, err := reg.Resolve("edge")
	require.NoError(t, err)

	_, err = reg.Resolve("edge")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestResolveUnknownProvider(t *testing.T) {
	t.Parallel()

	reg := providers.NewRegistry()

	_, err := reg.Resolve("nonexistent")
	require.Error(t, err)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindVoice, taxErr.Kind)
}

func TestParseVoiceRefExplicitProvider(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	ref, err := reg.ParseVoiceRef(context.Background(), "openai:nova")
	require.NoError(t, err)
	assert.Equal(t, core.VoiceNamed, ref.Kind)
	assert.Equal(t, "openai", ref.ProviderID)
	assert.Equal(t, "nova", ref.VoiceName)
}

func TestParseVoiceRefUnknownExplicitProvider(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	_, err := reg.ParseVoiceRef(context.Background(), "nope:nova")
	require.Error(t, err)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindVoice, taxErr.Kind)
}

func TestParseVoiceRefCloneFromPath(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "voice.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	ref, err := reg.ParseVoiceRef(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, core.VoiceCloneFrom, ref.Kind)
	assert.Equal(t, path, ref.Path)
}

func TestParseVoiceRefCatalogueScanTieBreak(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	// "shared-name" is advertised by both openai and elevenlabs; the
	// fixed scan order (edge, openai, elevenlabs, google, local) means
	// openai must win deterministically.
	ref, err := reg.ParseVoiceRef(context.Background(), "shared-name")
	require.NoError(t, err)
	assert.Equal(t, "openai", ref.ProviderID)

	// Parsing twice yields the same result (SPEC_FULL §8 property 1/2).
	ref2, err := reg.ParseVoiceRef(context.Background(), "shared-name")
	require.NoError(t, err)
	assert.Equal(t, ref, ref2)
}

func TestParseVoiceRefNoMatch(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	_, err := reg.ParseVoiceRef(context.Background(), "totally-unknown-voice")
	require.Error(t, err)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindVoice, taxErr.Kind)
	assert.NotEmpty(t, taxErr.Suggestions)
}

func TestParseVoiceRefEmptyStringIsDefault(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)

	ref, err := reg.ParseVoiceRef(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, core.VoiceDefault, ref.Kind)
}
