package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speakctl/internal/core"
	"github.com/book-expert/speakctl/internal/document"
	"github.com/book-expert/speakctl/internal/orchestrator"
	"github.com/book-expert/speakctl/internal/playback"
	"github.com/book-expert/speakctl/internal/providers"
	"github.com/book-expert/speakctl/internal/transcode"
)

type fakeProvider struct {
	descriptor  core.ProviderDescriptor
	synthesize  func(ctx context.Context, req core.TextRequest, target core.SynthesisTarget) error
	calls       int
	lastRequest core.TextRequest
}

func (f *fakeProvider) Describe() core.ProviderDescriptor { return f.descriptor }

func (f *fakeProvider) Synthesize(ctx context.Context, req core.TextRequest, target core.SynthesisTarget) error {
	f.calls++
	f.lastRequest = req

	return f.synthesize(ctx, req, target)
}

func (f *fakeProvider) ListVoices(context.Context) ([]core.VoiceRecord, error) {
	return nil, nil
}

func (f *fakeProvider) ValidateOptions(opts map[string]any) (map[string]any, error) {
	return opts, nil
}

func writeBytesProvider(descriptor core.ProviderDescriptor) *fakeProvider {
	return &fakeProvider{
		descriptor: descriptor,
		synthesize: func(_ context.Context, _ core.TextRequest, target core.SynthesisTarget) error {
			return os.WriteFile(target.Path, []byte("audio-bytes"), 0o600)
		},
	}
}

func newRegistryWithProvider(t *testing.T, id string, provider core.Provider) *providers.Registry {
	t.Helper()

	reg := providers.NewRegistry()
	reg.Register(id, func() (core.Provider, error) { return provider, nil })

	return reg
}

func mp3Descriptor(streaming bool) core.ProviderDescriptor {
	return core.ProviderDescriptor{
		ID:                "edge",
		SupportedFormats:  []core.AudioFormat{core.FormatMP3},
		SupportsStreaming: streaming,
	}
}

func TestSynthesize_PlainTextWritesFile(t *testing.T) {
	t.Parallel()

	provider := writeBytesProvider(mp3Descriptor(false))
	reg := newRegistryWithProvider(t, "edge", provider)

	orch := orchestrator.New(reg, playback.New("speakctl-does-not-exist-binary", nil), transcode.New("speakctl-does-not-exist-binary", nil), nil, "edge", nil)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.mp3")

	err := orch.Synthesize(context.Background(), orchestrator.Request{
		Text:   "hello",
		Voice:  core.VoiceRef{Kind: core.VoiceDefault},
		Format: core.FormatMP3,
		Output: outPath,
	})
	require.NoError(t, err)

	data, readErr := os.ReadFile(outPath)
	require.NoError(t, readErr)
	assert.Equal(t, "audio-bytes", string(data))
	assert.Equal(t, 1, provider.calls)
}

func TestSynthesize_RetriesRetriableErrorThenSucceeds(t *testing.T) {
	t.Parallel()

	attempts := 0
	provider := &fakeProvider{
		descriptor: mp3Descriptor(false),
		synthesize: func(_ context.Context, _ core.TextRequest, target core.SynthesisTarget) error {
			attempts++
			if attempts < 2 {
				return core.NewNetworkError("edge", "connection reset", nil)
			}

			return os.WriteFile(target.Path, []byte("ok"), 0o600)
		},
	}

	reg := newRegistryWithProvider(t, "edge", provider)
	orch := orchestrator.New(reg, playback.New("speakctl-does-not-exist-binary", nil), transcode.New("speakctl-does-not-exist-binary", nil), nil, "edge", nil)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.mp3")

	err := orch.Synthesize(context.Background(), orchestrator.Request{
		Text:   "hello",
		Voice:  core.VoiceRef{Kind: core.VoiceDefault},
		Format: core.FormatMP3,
		Output: outPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestSynthesize_NonRetriableErrorSurfacesImmediately(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		descriptor: mp3Descriptor(false),
		synthesize: func(context.Context, core.TextRequest, core.SynthesisTarget) error {
			return core.NewAuthenticationError("edge", "bad key", nil)
		},
	}

	reg := newRegistryWithProvider(t, "edge", provider)
	orch := orchestrator.New(reg, playback.New("speakctl-does-not-exist-binary", nil), transcode.New("speakctl-does-not-exist-binary", nil), nil, "edge", nil)

	err := orch.Synthesize(context.Background(), orchestrator.Request{
		Text:   "hello",
		Voice:  core.VoiceRef{Kind: core.VoiceDefault},
		Format: core.FormatMP3,
		Output: filepath.Join(t.TempDir(), "out.mp3"),
	})
	require.Error(t, err)
	assert.Equal(t, 1, provider.calls)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindAuthentication, taxErr.Kind)
}

func TestSynthesize_StreamDowngradeFallsBackToFileThenPlay(t *testing.T) {
	t.Parallel()

	provider := writeBytesProvider(mp3Descriptor(false)) // SupportsStreaming: false

	reg := newRegistryWithProvider(t, "edge", provider)
	orch := orchestrator.New(reg, playback.New("speakctl-does-not-exist-binary", nil), transcode.New("speakctl-does-not-exist-binary", nil), nil, "edge", nil)

	err := orch.Synthesize(context.Background(), orchestrator.Request{
		Text:   "hello",
		Voice:  core.VoiceRef{Kind: core.VoiceDefault},
		Format: core.FormatMP3,
		Stream: true,
	})
	require.Error(t, err)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindDependency, taxErr.Kind)
	assert.False(t, provider.lastRequest.Stream)
}

func TestSynthesize_FormatDowngradeTranscodes(t *testing.T) {
	t.Parallel()

	descriptor := core.ProviderDescriptor{
		ID:               "edge",
		SupportedFormats: []core.AudioFormat{core.FormatWAV},
	}
	provider := writeBytesProvider(descriptor)

	reg := newRegistryWithProvider(t, "edge", provider)
	orch := orchestrator.New(reg, playback.New("speakctl-does-not-exist-binary", nil), transcode.New("speakctl-does-not-exist-binary", nil), nil, "edge", nil)

	err := orch.Synthesize(context.Background(), orchestrator.Request{
		Text:   "hello",
		Voice:  core.VoiceRef{Kind: core.VoiceDefault},
		Format: core.FormatMP3,
		Output: filepath.Join(t.TempDir(), "out.mp3"),
	})
	require.Error(t, err)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindDependency, taxErr.Kind)
	assert.Equal(t, core.FormatWAV, provider.lastRequest.Format)
}

func TestSynthesize_UnknownNamedProviderSurfacesVoiceError(t *testing.T) {
	t.Parallel()

	reg := providers.NewRegistry()
	orch := orchestrator.New(reg, playback.New("speakctl-does-not-exist-binary", nil), transcode.New("speakctl-does-not-exist-binary", nil), nil, "edge", nil)

	err := orch.Synthesize(context.Background(), orchestrator.Request{
		Text:   "hello",
		Voice:  core.VoiceRef{Kind: core.VoiceNamed, ProviderID: "does-not-exist", VoiceName: "x"},
		Format: core.FormatMP3,
		Output: filepath.Join(t.TempDir(), "out.mp3"),
	})
	require.Error(t, err)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindVoice, taxErr.Kind)
}

func TestSynthesize_CloneFromRoutesToLocalProvider(t *testing.T) {
	t.Parallel()

	descriptor := core.ProviderDescriptor{
		ID:                "local",
		SupportedFormats:  []core.AudioFormat{core.FormatMP3},
		SupportsStreaming: false,
		SupportsCloning:   true,
	}
	provider := writeBytesProvider(descriptor)

	reg := providers.NewRegistry()
	reg.Register("local", func() (core.Provider, error) { return provider, nil })
	reg.Register("edge", func() (core.Provider, error) {
		return writeBytesProvider(mp3Descriptor(false)), nil
	})

	orch := orchestrator.New(reg, playback.New("speakctl-does-not-exist-binary", nil), transcode.New("speakctl-does-not-exist-binary", nil), nil, "edge", nil)

	err := orch.Synthesize(context.Background(), orchestrator.Request{
		Text:   "hello",
		Voice:  core.VoiceRef{Kind: core.VoiceCloneFrom, Path: "/tmp/ref.wav"},
		Format: core.FormatMP3,
		Output: filepath.Join(t.TempDir(), "out.mp3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, core.VoiceCloneFrom, provider.lastRequest.Voice.Kind)
}

func TestSynthesize_CloneFromRejectedWhenLocalProviderMissingCloning(t *testing.T) {
	t.Parallel()

	descriptor := core.ProviderDescriptor{
		ID:               "local",
		SupportedFormats: []core.AudioFormat{core.FormatMP3},
		SupportsCloning:  false,
	}
	provider := writeBytesProvider(descriptor)

	reg := providers.NewRegistry()
	reg.Register("local", func() (core.Provider, error) { return provider, nil })

	orch := orchestrator.New(reg, playback.New("speakctl-does-not-exist-binary", nil), transcode.New("speakctl-does-not-exist-binary", nil), nil, "edge", nil)

	err := orch.Synthesize(context.Background(), orchestrator.Request{
		Text:   "hello",
		Voice:  core.VoiceRef{Kind: core.VoiceCloneFrom, Path: "/tmp/ref.wav"},
		Format: core.FormatMP3,
		Output: filepath.Join(t.TempDir(), "out.mp3"),
	})
	require.Error(t, err)
	assert.Equal(t, 0, provider.calls)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindVoice, taxErr.Kind)
}

func TestSynthesize_DocumentModeEmitsSSMLAndCaches(t *testing.T) {
	t.Parallel()

	provider := writeBytesProvider(mp3Descriptor(false))
	reg := newRegistryWithProvider(t, "edge", provider)

	cache, err := document.NewCache(t.TempDir())
	require.NoError(t, err)

	orch := orchestrator.New(reg, playback.New("speakctl-does-not-exist-binary", nil), transcode.New("speakctl-does-not-exist-binary", nil), cache, "edge", nil)

	req := orchestrator.Request{
		Document:       "# Title\n\nHello **world**.",
		Voice:          core.VoiceRef{Kind: core.VoiceDefault},
		Format:         core.FormatMP3,
		Output:         filepath.Join(t.TempDir(), "out.mp3"),
		SSML:           true,
		SSMLPlatform:   document.PlatformGeneric,
		EmotionProfile: document.ProfileAuto,
	}

	require.NoError(t, orch.Synthesize(context.Background(), req))
	firstText := provider.lastRequest.Text
	assert.True(t, strings.HasPrefix(firstText, "<speak"))

	req.Output = filepath.Join(t.TempDir(), "out2.mp3")
	require.NoError(t, orch.Synthesize(context.Background(), req))
	assert.Equal(t, firstText, provider.lastRequest.Text)
}
