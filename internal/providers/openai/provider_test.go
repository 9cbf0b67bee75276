package openai_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/speakctl/internal/core"
	"github.com/book-expert/speakctl/internal/providers/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeNonStreamingWritesFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("fake-mp3-bytes"))
	}))
	defer server.Close()

	p := openai.New(openai.Config{APIKey: "sk-test", Endpoint: server.URL}, nil)

	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp3")

	req := core.TextRequest{Text: "hello", Format: core.FormatMP3}
	err := p.Synthesize(context.Background(), req, core.SynthesisTarget{Path: out})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "fake-mp3-bytes", string(data))
}

func TestSynthesizeStreamingWritesToSink(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("chunk1chunk2"))
	}))
	defer server.Close()

	p := openai.New(openai.Config{APIKey: "sk-test", Endpoint: server.URL}, nil)

	var buf bytes.Buffer

	req := core.TextRequest{Text: "hello", Stream: true}
	err := p.Synthesize(context.Background(), req, core.SynthesisTarget{Writer: &buf})
	require.NoError(t, err)
	assert.Equal(t, "chunk1chunk2", buf.String())
}

func TestSynthesizeNoAPIKeyIsAuthError(t *testing.T) {
	t.Parallel()

	p := openai.New(openai.Config{}, nil)

	err := p.Synthesize(context.Background(), core.TextRequest{Text: "hi"}, core.SynthesisTarget{Path: "/tmp/x.mp3"})
	require.Error(t, err)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindAuthentication, taxErr.Kind)
}

func TestSynthesizeMapsHTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status       int
		expectedKind core.Kind
	}{
		{http.StatusUnauthorized, core.KindAuthentication},
		{http.StatusForbidden, core.KindAuthentication},
		{http.StatusTooManyRequests, core.KindQuota},
		{http.StatusInternalServerError, core.KindProvider},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			}))
			defer server.Close()

			p := openai.New(openai.Config{APIKey: "sk-test", Endpoint: server.URL}, nil)

			err := p.Synthesize(context.Background(), core.TextRequest{Text: "hi"}, core.SynthesisTarget{Path: filepath.Join(t.TempDir(), "x.mp3")})
			require.Error(t, err)

			taxErr, ok := core.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tc.expectedKind, taxErr.Kind)
		})
	}
}

func TestValidateOptionsRejectsUnknown(t *testing.T) {
	t.Parallel()

	p := openai.New(openai.Config{}, nil)

	_, err := p.ValidateOptions(map[string]any{"bogus": true})
	require.Error(t, err)

	taxErr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.KindBadOption, taxErr.Kind)
}
