// Package google implements the Google Provider (SPEC_FULL §4.8): dual
// authentication (API key query param, or a service-account JSON yielding
// an OAuth token cached until expiry with a 5 minute skew), non-streaming
// only, base64-encoded response body. The OAuth exchange is grounded on
// golang.org/x/oauth2/google (present directly in
// AltairaLabs-PromptKit/go.mod's runtime requires); JWTConfigFromJSON's
// TokenSource natively provides the cached-token-with-skew behaviour the
// spec calls for, so no hand-rolled token cache is needed here.
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/speakctl/internal/atomicfile"
	"github.com/book-expert/speakctl/internal/core"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	providerID       = "google"
	apiBaseURL       = "https://texttospeech.googleapis.com/v1"
	synthesizePath   = "/text:synthesize"
	apiKeyQueryParam = "key"
	oauthScope       = "https://www.googleapis.com/auth/cloud-platform"
	ssmlPrefix       = "<speak"

	defaultEncoding = "MP3"
)

// Config holds the Google provider's construction-time settings. At most
// one auth path should be configured; if both are present, ServiceAccountJSON
// wins (SPEC_FULL §4.8).
type Config struct {
	APIKey            string
	ServiceAccountJSON []byte
	Endpoint          string
	DefaultVoice      string
	LanguageCode      string
}

// Provider implements core.Provider against the Google Cloud
// Text-to-Speech REST API.
type Provider struct {
	apiKey       string
	tokenSource  oauth2.TokenSource
	baseURL      string
	defaultVoice string
	languageCode string
	httpClient   *http.Client
}

// New constructs a Provider. When cfg.ServiceAccountJSON is non-empty it
// takes priority over cfg.APIKey, matching SPEC_FULL §4.8's "service
// account wins" rule.
func New(cfg Config) (*Provider, error) {
	base := cfg.Endpoint
	if base == "" {
		base = apiBaseURL
	}

	lang := cfg.LanguageCode
	if lang == "" {
		lang = "en-US"
	}

	p := &Provider{
		apiKey:       cfg.APIKey,
		baseURL:      base,
		defaultVoice: cfg.DefaultVoice,
		languageCode: lang,
		httpClient:   &http.Client{Timeout: 40 * time.Second},
	}

	if len(cfg.ServiceAccountJSON) > 0 {
		jwtCfg, err := google.JWTConfigFromJSON(cfg.ServiceAccountJSON, oauthScope)
		if err != nil {
			return nil, core.NewAuthenticationError(providerID, "invalid service account JSON", err)
		}

		p.tokenSource = jwtCfg.TokenSource(context.Background())
		p.apiKey = ""
	}

	return p, nil
}

// Describe returns the Google provider's static metadata.
func (p *Provider) Describe() core.ProviderDescriptor {
	return core.ProviderDescriptor{
		ID:                providerID,
		DisplayName:       "Google Cloud Text-to-Speech",
		RequiresNetwork:   true,
		RequiresAPIKey:    true,
		SupportedFormats:  []core.AudioFormat{core.FormatMP3, core.FormatWAV, core.FormatOGG},
		SupportsStreaming: false,
		SupportsCloning:   false,
		SupportsSSML:      true,
	}
}

type synthesizeInput struct {
	Text string `json:"text,omitempty"`
	SSML string `json:"ssml,omitempty"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type audioConfig struct {
	AudioEncoding string `json:"audioEncoding"`
}

type synthesizeRequest struct {
	Input       synthesizeInput `json:"input"`
	Voice       voiceSelection  `json:"voice"`
	AudioConfig audioConfig     `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize implements core.Provider. Non-streaming only, per SPEC_FULL
// §4.8; a streaming request reaching this provider is the orchestrator's
// responsibility to have already downgraded (SPEC_FULL §4.16 step 3).
func (p *Provider) Synthesize(ctx context.Context, req core.TextRequest, target core.SynthesisTarget) error {
	if p.apiKey == "" && p.tokenSource == nil {
		return core.NewAuthenticationError(providerID, "no API key or service account configured", nil)
	}

	body := synthesizeRequest{
		Voice: voiceSelection{LanguageCode: p.languageCode, Name: requestedVoice(req, p.defaultVoice)},
		AudioConfig: audioConfig{AudioEncoding: encodingFor(req.Format)},
	}

	if strings.HasPrefix(strings.TrimSpace(req.Text), ssmlPrefix) {
		body.Input.SSML = req.Text
	} else {
		body.Input.Text = req.Text
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return core.NewInternalError("failed to marshal Google TTS request", err)
	}

	endpoint, err := p.endpointURL()
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return core.NewInternalError("failed to build Google TTS request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if err := p.authorize(ctx, httpReq); err != nil {
		return err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return core.NewCancelledError("synthesis cancelled", err)
		}

		return core.NewNetworkError(providerID, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody bytes.Buffer
		_, _ = errBody.ReadFrom(resp.Body)

		return core.MapHTTPStatus(providerID, resp.StatusCode, errBody.String())
	}

	var payload synthesizeResponse

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return core.NewInternalError("failed to decode Google TTS response", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(payload.AudioContent)
	if err != nil {
		return core.NewInternalError("failed to decode base64 audio content", err)
	}

	if target.Streaming() {
		_, err := target.Writer.Write(decoded)
		if err != nil {
			return core.NewInternalError("failed to write decoded audio to sink", err)
		}

		return nil
	}

	if err := atomicfile.WriteFromReader(target.Path, bytes.NewReader(decoded)); err != nil {
		return core.NewInternalError("failed to write Google TTS audio to path", err)
	}

	return nil
}

func (p *Provider) endpointURL() (string, error) {
	if p.tokenSource != nil {
		return p.baseURL + synthesizePath, nil
	}

	u, err := url.Parse(p.baseURL + synthesizePath)
	if err != nil {
		return "", core.NewInternalError("failed to parse Google TTS endpoint", err)
	}

	q := u.Query()
	q.Set(apiKeyQueryParam, p.apiKey)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (p *Provider) authorize(ctx context.Context, req *http.Request) error {
	if p.tokenSource == nil {
		return nil
	}

	token, err := p.tokenSource.Token()
	if err != nil {
		return core.NewAuthenticationError(providerID, "failed to exchange service-account token", err)
	}

	token.SetAuthHeader(req)

	_ = ctx

	return nil
}

func requestedVoice(req core.TextRequest, fallback string) string {
	if req.Voice.Kind == core.VoiceNamed && req.Voice.VoiceName != "" {
		return req.Voice.VoiceName
	}

	return fallback
}

func encodingFor(f core.AudioFormat) string {
	switch f {
	case core.FormatWAV:
		return "LINEAR16"
	case core.FormatOGG:
		return "OGG_OPUS"
	case core.FormatMP3, "":
		return defaultEncoding
	default:
		return defaultEncoding
	}
}

// ListVoices calls the Google Cloud voices:list endpoint.
func (p *Provider) ListVoices(ctx context.Context) ([]core.VoiceRecord, error) {
	endpoint, err := p.voicesURL()
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, core.NewInternalError("failed to build voices request", err)
	}

	if err := p.authorize(ctx, httpReq); err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewNetworkError(providerID, "voices request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody bytes.Buffer
		_, _ = errBody.ReadFrom(resp.Body)

		return nil, core.MapHTTPStatus(providerID, resp.StatusCode, errBody.String())
	}

	var payload struct {
		Voices []struct {
			Name         string   `json:"name"`
			LanguageCodes []string `json:"languageCodes"`
		} `json:"voices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, core.NewInternalError("failed to decode voices response", err)
	}

	out := make([]core.VoiceRecord, 0, len(payload.Voices))

	for _, v := range payload.Voices {
		locale := ""
		if len(v.LanguageCodes) > 0 {
			locale = v.LanguageCodes[0]
		}

		out = append(out, core.VoiceRecord{Name: v.Name, Locale: locale})
	}

	return out, nil
}

func (p *Provider) voicesURL() (string, error) {
	if p.tokenSource != nil {
		return p.baseURL + "/voices", nil
	}

	u, err := url.Parse(p.baseURL + "/voices")
	if err != nil {
		return "", core.NewInternalError("failed to parse Google voices endpoint", err)
	}

	q := u.Query()
	q.Set(apiKeyQueryParam, p.apiKey)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ValidateOptions implements core.Provider; the Google provider accepts no
// free-form options.
func (p *Provider) ValidateOptions(opts map[string]any) (map[string]any, error) {
	if len(opts) > 0 {
		names := make([]string, 0, len(opts))
		for k := range opts {
			names = append(names, k)
		}

		return nil, core.NewBadOptionError(fmt.Sprintf("google provider accepts no options, got %v", names), nil)
	}

	return map[string]any{}, nil
}
