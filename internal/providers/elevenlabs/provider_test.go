package elevenlabs_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/speakctl/internal/core"
	"github.com/book-expert/speakctl/internal/providers/elevenlabs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/voices", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"abc123","name":"Rachel"}]}`))
	})
	mux.HandleFunc("/v1/text-to-speech/abc123", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("fake-audio"))
	})

	return httptest.NewServer(mux)
}

func TestListVoicesPopulatesCache(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	defer server.Close()

	p := elevenlabs.New(elevenlabs.Config{APIKey: "key", Endpoint: server.URL + "/v1"})

	voices, err := p.ListVoices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "Rachel", voices[0].Name)
}

func TestSynthesizeResolvesVoiceNameToID(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	defer server.Close()

	p := elevenlabs.New(elevenlabs.Config{APIKey: "key", Endpoint: server.URL + "/v1"})

	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp3")

	req := core.TextRequest{Text: "hello", Voice: core.VoiceRef{Kind: core.VoiceNamed, VoiceName: "Rachel"}}
	err := p.Synthesize(context.Background(), req, core.SynthesisTarget{Path: out})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "fake-audio", string(data))
}

func TestSynthesizeUnknownVoiceIsVoiceError(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	defer server.Close()

	p := elevenlabs.New(elevenlabs.Config{APIKey: "key", Endpoint: server.URL + "/v1"})

	req := core.TextRequest{Text: "hello", Voice: core.VoiceRef{Kind: core.VoiceNamed, VoiceName: "nobody"}}
	err := p.Synthesize(context.Background(), req, core.SynthesisTarget{Path: filepath.Join(t.TempDir(), "x.mp3")})
	require.Error(t, err)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindVoice, taxErr.Kind)
}

func TestValidateOptionsClampsOutOfRange(t *testing.T) {
	t.Parallel()

	p := elevenlabs.New(elevenlabs.Config{})

	normalised, err := p.ValidateOptions(map[string]any{"stability": 5.0, "style": -2.0})
	require.NoError(t, err)
	assert.InEpsilon(t, 1.0, normalised["stability"], 0.0001)
	assert.Equal(t, 0.0, normalised["style"])
}

func TestValidateOptionsRejectsUnknown(t *testing.T) {
	t.Parallel()

	p := elevenlabs.New(elevenlabs.Config{})

	_, err := p.ValidateOptions(map[string]any{"bogus": 1.0})
	require.Error(t, err)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindBadOption, taxErr.Kind)
}
