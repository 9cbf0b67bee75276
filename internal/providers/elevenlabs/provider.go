// Package elevenlabs implements the ElevenLabs Provider (SPEC_FULL §4.7).
// HTTP client idiom grounded on the teacher's internal/tts/client.go; the
// voice-name -> id cache uses an expirable LRU
// (github.com/hashicorp/golang-lru/v2/expirable, carried over from
// loqalabs-loqa-core's dependency graph) so the "TTL: process lifetime"
// cache has a real, bounded eviction policy instead of an unbounded map.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/speakctl/internal/atomicfile"
	"github.com/book-expert/speakctl/internal/core"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	providerID     = "elevenlabs"
	apiBaseURL     = "https://api.elevenlabs.io/v1"
	voicesPath     = "/voices"
	ttsPathFmt     = "/text-to-speech/%s"
	streamPathFmt  = "/text-to-speech/%s/stream"
	headerAPIKey   = "xi-api-key"
	headerAccept   = "Accept"
	headerContent  = "Content-Type"
	contentJSON    = "application/json"
	acceptAudio    = "audio/mpeg"

	voiceCacheSize = 256
	voiceCacheTTL  = 24 * time.Hour

	minClamp = 0.0
	maxClamp = 1.0
)

// Config holds the ElevenLabs provider's construction-time settings.
type Config struct {
	APIKey   string
	Endpoint string
}

// Provider implements core.Provider against the ElevenLabs REST API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	voiceIDs   *lru.LRU[string, string]
}

// New constructs a Provider.
func New(cfg Config) *Provider {
	base := cfg.Endpoint
	if base == "" {
		base = apiBaseURL
	}

	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 40 * time.Second},
		voiceIDs:   lru.NewLRU[string, string](voiceCacheSize, nil, voiceCacheTTL),
	}
}

// Describe returns the ElevenLabs provider's static metadata.
func (p *Provider) Describe() core.ProviderDescriptor {
	return core.ProviderDescriptor{
		ID:                providerID,
		DisplayName:       "ElevenLabs",
		RequiresNetwork:   true,
		RequiresAPIKey:    true,
		SupportedFormats:  []core.AudioFormat{core.FormatMP3},
		SupportsStreaming: true,
		SupportsCloning:   false,
		SupportsSSML:      false,
		OptionSchema: map[string]core.OptionSpec{
			"stability":        {Name: "stability", Type: core.OptionFloat, Min: minClamp, Max: maxClamp, Default: 0.5},
			"similarity_boost": {Name: "similarity_boost", Type: core.OptionFloat, Min: minClamp, Max: maxClamp, Default: 0.75},
			"style":            {Name: "style", Type: core.OptionFloat, Min: minClamp, Max: maxClamp, Default: 0.0},
		},
	}
}

type voiceListResponse struct {
	Voices []struct {
		VoiceID string `json:"voice_id"`
		Name    string `json:"name"`
	} `json:"voices"`
}

type synthesisRequest struct {
	Text          string                 `json:"text"`
	VoiceSettings map[string]float64     `json:"voice_settings,omitempty"`
}

// ListVoices fetches the live catalogue, populating the id cache.
func (p *Provider) ListVoices(ctx context.Context) ([]core.VoiceRecord, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+voicesPath, nil)
	if err != nil {
		return nil, core.NewInternalError("failed to build voices request", err)
	}

	httpReq.Header.Set(headerAPIKey, p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewNetworkError(providerID, "voices request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var payload voiceListResponse

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, core.NewInternalError("failed to decode voices response", err)
	}

	voices := make([]core.VoiceRecord, 0, len(payload.Voices))

	for _, v := range payload.Voices {
		p.voiceIDs.Add(v.Name, v.VoiceID)
		voices = append(voices, core.VoiceRecord{Name: v.Name, DisplayName: v.Name})
	}

	return voices, nil
}

// resolveVoiceID resolves a voice name to its opaque id, refreshing the
// catalogue once if the name is not cached.
func (p *Provider) resolveVoiceID(ctx context.Context, name string) (string, error) {
	if id, ok := p.voiceIDs.Get(name); ok {
		return id, nil
	}

	if _, err := p.ListVoices(ctx); err != nil {
		return "", err
	}

	if id, ok := p.voiceIDs.Get(name); ok {
		return id, nil
	}

	return "", core.NewVoiceError(providerID, fmt.Sprintf("unknown ElevenLabs voice %q", name), nil)
}

// Synthesize implements core.Provider.
func (p *Provider) Synthesize(ctx context.Context, req core.TextRequest, target core.SynthesisTarget) error {
	if p.apiKey == "" {
		return core.NewAuthenticationError(providerID, "no API key configured", nil)
	}

	voiceID, err := p.resolveVoiceID(ctx, req.Voice.VoiceName)
	if err != nil {
		return err
	}

	settings := clampedSettings(req.ProviderOptions)

	body := synthesisRequest{Text: req.Text, VoiceSettings: settings}

	encoded, err := json.Marshal(body)
	if err != nil {
		return core.NewInternalError("failed to marshal ElevenLabs request", err)
	}

	path := fmt.Sprintf(ttsPathFmt, voiceID)
	if req.Stream {
		path = fmt.Sprintf(streamPathFmt, voiceID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return core.NewInternalError("failed to build ElevenLabs request", err)
	}

	httpReq.Header.Set(headerAPIKey, p.apiKey)
	httpReq.Header.Set(headerContent, contentJSON)
	httpReq.Header.Set(headerAccept, acceptAudio)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return core.NewCancelledError("synthesis cancelled", err)
		}

		return core.NewNetworkError(providerID, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	if target.Streaming() {
		if _, err := io.Copy(target.Writer, resp.Body); err != nil {
			return core.NewNetworkError(providerID, "failed to stream response body", err)
		}

		return nil
	}

	if err := atomicfile.WriteFromReader(target.Path, resp.Body); err != nil {
		return core.NewInternalError("failed to write ElevenLabs audio to path", err)
	}

	return nil
}

func clampedSettings(opts map[string]any) map[string]float64 {
	settings := make(map[string]float64)

	for _, key := range []string{"stability", "similarity_boost", "style"} {
		value, ok := opts[key]
		if !ok {
			continue
		}

		f, ok := toFloat(value)
		if !ok {
			continue
		}

		settings[key] = clamp(f, minClamp, maxClamp)
	}

	return settings
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func parseErrorResponse(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	return core.MapHTTPStatus(providerID, resp.StatusCode, string(data))
}

// ValidateOptions implements core.Provider's option schema check, clamping
// stability/similarity_boost/style into [0, 1] rather than rejecting
// out-of-range values, per SPEC_FULL §4.7.
func (p *Provider) ValidateOptions(opts map[string]any) (map[string]any, error) {
	normalised := make(map[string]any, len(opts))

	for key, value := range opts {
		switch key {
		case "stability", "similarity_boost", "style":
			f, ok := toFloat(value)
			if !ok {
				return nil, core.NewBadOptionError(fmt.Sprintf("option %q must be numeric", key), nil)
			}

			normalised[key] = clamp(f, minClamp, maxClamp)
		default:
			return nil, core.NewBadOptionError(fmt.Sprintf("unknown option %q", key), []string{"stability", "similarity_boost", "style"})
		}
	}

	return normalised, nil
}
