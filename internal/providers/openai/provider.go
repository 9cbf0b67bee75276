// Package openai implements the OpenAI Provider (SPEC_FULL §4.6), grounded
// on the teacher's internal/tts/client.go HTTPClient: the same
// named-constant header/endpoint/default blocks and the same
// validate-then-marshal-then-POST shape, retargeted from a ChatLLM
// speech-microservice client to OpenAI's hosted speech endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speakctl/internal/atomicfile"
	"github.com/book-expert/speakctl/internal/core"
)

const (
	providerID      = "openai"
	apiBaseURL      = "https://api.openai.com/v1"
	apiSpeechPath   = "/audio/speech"
	headerAuth      = "Authorization"
	headerAuthFmt   = "Bearer %s"
	headerContent   = "Content-Type"
	contentTypeJSON = "application/json"

	defaultModel   = "tts-1"
	defaultVoice   = "alloy"
	defaultConnect = 10 * time.Second
	defaultRead    = 30 * time.Second
)

// allowedVoices is the fixed allow-list from SPEC_FULL §4.6.
var allowedVoices = map[string]bool{
	"alloy": true, "echo": true, "fable": true,
	"onyx": true, "nova": true, "shimmer": true,
}

// Config holds the OpenAI provider's construction-time settings.
type Config struct {
	APIKey       string
	Endpoint     string
	DefaultVoice string
}

// Provider implements core.Provider against OpenAI's speech endpoint.
type Provider struct {
	apiKey       string
	baseURL      string
	defaultVoice string
	httpClient   *http.Client
	log          *logger.Logger
}

// New constructs a Provider. If cfg.Endpoint is empty, apiBaseURL is used.
func New(cfg Config, log *logger.Logger) *Provider {
	base := cfg.Endpoint
	if base == "" {
		base = apiBaseURL
	}

	voice := cfg.DefaultVoice
	if voice == "" {
		voice = defaultVoice
	}

	return &Provider{
		apiKey:       cfg.APIKey,
		baseURL:      base,
		defaultVoice: voice,
		httpClient: &http.Client{
			Timeout: defaultConnect + defaultRead,
		},
		log: log,
	}
}

// Describe returns the OpenAI provider's static metadata.
func (p *Provider) Describe() core.ProviderDescriptor {
	return core.ProviderDescriptor{
		ID:                providerID,
		DisplayName:       "OpenAI",
		RequiresNetwork:   true,
		RequiresAPIKey:    true,
		SupportedFormats:  []core.AudioFormat{core.FormatMP3, core.FormatOGG, core.FormatFLAC, core.FormatWAV},
		SupportsStreaming: true,
		SupportsCloning:   false,
		SupportsSSML:      false,
		OptionSchema: map[string]core.OptionSpec{
			"model": {Name: "model", Type: core.OptionString, Default: defaultModel},
		},
	}
}

// speechRequest is the JSON body shape SPEC_FULL §4.6 names:
// {model, voice, input, response_format}.
type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize implements core.Provider.
func (p *Provider) Synthesize(ctx context.Context, req core.TextRequest, target core.SynthesisTarget) error {
	if p.apiKey == "" {
		return core.NewAuthenticationError(providerID, "no API key configured", nil)
	}

	voice := p.resolveVoice(req.Voice.VoiceName)

	model := defaultModel
	if m, ok := req.ProviderOptions["model"].(string); ok && m != "" {
		model = m
	}

	body := speechRequest{
		Model:          model,
		Voice:          voice,
		Input:          req.Text,
		ResponseFormat: string(formatOrDefault(req.Format)),
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return core.NewInternalError("failed to marshal OpenAI speech request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+apiSpeechPath, bytes.NewReader(encoded))
	if err != nil {
		return core.NewInternalError("failed to build OpenAI request", err)
	}

	httpReq.Header.Set(headerAuth, fmt.Sprintf(headerAuthFmt, p.apiKey))
	httpReq.Header.Set(headerContent, contentTypeJSON)

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

	return writeAudio(resp.Body, target)
}

func (p *Provider) resolveVoice(requested string) string {
	if requested == "" {
		return p.defaultVoice
	}

	if allowedVoices[requested] {
		return requested
	}

	if p.log != nil {
		p.log.Warn("unknown OpenAI voice %q, falling back to default %q", requested, p.defaultVoice)
	}

	return p.defaultVoice
}

func formatOrDefault(f core.AudioFormat) core.AudioFormat {
	if f == "" {
		return core.DefaultAudioFormat
	}

	return f
}

func writeAudio(body io.Reader, target core.SynthesisTarget) error {
	if target.Streaming() {
		_, err := io.Copy(target.Writer, body)
		if err != nil {
			return core.NewNetworkError(providerID, "failed to stream response body", err)
		}

		return nil
	}

	err := atomicfile.WriteFromReader(target.Path, body)
	if err != nil {
		return core.NewInternalError("failed to write OpenAI audio to path", err)
	}

	return nil
}

func parseErrorResponse(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	message := string(data)

	if err := json.Unmarshal(data, &payload); err == nil && payload.Error.Message != "" {
		message = payload.Error.Message
	}

	return core.MapHTTPStatus(providerID, resp.StatusCode, message)
}

// ListVoices returns the fixed allow-list, since OpenAI's speech endpoint
// has no catalogue lookup API.
func (p *Provider) ListVoices(_ context.Context) ([]core.VoiceRecord, error) {
	voices := make([]core.VoiceRecord, 0, len(allowedVoices))

	for name := range allowedVoices {
		voices = append(voices, core.VoiceRecord{Name: name})
	}

	return voices, nil
}

// ValidateOptions implements core.Provider's option schema check.
func (p *Provider) ValidateOptions(opts map[string]any) (map[string]any, error) {
	normalised := make(map[string]any, len(opts))

	for key, value := range opts {
		switch key {
		case "model":
			str, ok := value.(string)
			if !ok {
				return nil, core.NewBadOptionError(fmt.Sprintf("option %q must be a string", key), nil)
			}

			normalised[key] = str
		default:
			return nil, core.NewBadOptionError(fmt.Sprintf("unknown option %q", key), []string{"model"})
		}
	}

	return normalised, nil
}
