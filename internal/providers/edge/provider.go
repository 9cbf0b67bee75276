// Package edge implements the Edge Provider (SPEC_FULL §4.5): a
// cooperative, single-threaded streaming client against a
// websocket-based text/audio multiplexing protocol, wire-compatible with
// Microsoft's public edge speech service. No API key. Grounded on
// github.com/gorilla/websocket (carried over from
// AltairaLabs-PromptKit/runtime's dependency graph) and on that repo's
// internal/streaming.Conn for the dial-then-read-loop shape, retargeted
// from a bidirectional chat transport to a one-shot
// config-then-ssml-then-drain synthesis exchange.
package edge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/book-expert/speakctl/internal/atomicfile"
	"github.com/book-expert/speakctl/internal/core"
)

const (
	providerID = "edge"

	defaultEndpoint = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	trustedToken    = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"

	pathSpeechConfig = "speech.config"
	pathSSML         = "ssml"
	pathTurnStart    = "turn.start"
	pathTurnEnd      = "turn.end"
	pathAudio        = "audio"

	headerSeparator  = "\r\n"
	headerBodySplit  = headerSeparator + headerSeparator
	binaryHeaderSize = 2

	ssmlPrefix = "<speak"

	dialTimeout  = 10 * time.Second
	drainTimeout = 30 * time.Second

	defaultVoiceName = "en-US-AriaNeural"
)

// defaultVoices is the catalogue scanned in SPEC_FULL §4.4 step 3. A real
// deployment would fetch this from the service's voices list endpoint;
// the core ships a fixed, representative set so voice resolution stays
// deterministic without a network round trip at registry-construction
// time.
var defaultVoices = []core.VoiceRecord{
	{Name: "en-US-AriaNeural", DisplayName: "Aria", Locale: "en-US"},
	{Name: "en-US-GuyNeural", DisplayName: "Guy", Locale: "en-US"},
	{Name: "en-GB-SoniaNeural", DisplayName: "Sonia", Locale: "en-GB"},
	{Name: "es-ES-ElviraNeural", DisplayName: "Elvira", Locale: "es-ES"},
}

// Dialer is the subset of *websocket.Dialer this package depends on,
// narrowed so tests can substitute a dialer pointed at an httptest server.
type Dialer interface {
	DialContext(ctx context.Context, url string, header map[string][]string) (*websocket.Conn, error)
}

type dialerFunc func(ctx context.Context, url string, header map[string][]string) (*websocket.Conn, error)

func (f dialerFunc) DialContext(ctx context.Context, url string, header map[string][]string) (*websocket.Conn, error) {
	return f(ctx, url, header)
}

// Config holds the Edge provider's construction-time settings.
type Config struct {
	Endpoint     string
	DefaultVoice string
}

// Provider implements core.Provider against the websocket multiplexing
// protocol.
type Provider struct {
	endpoint     string
	defaultVoice string
	dialer       Dialer
}

// New constructs a Provider using the real gorilla/websocket dialer.
func New(cfg Config) *Provider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	voice := cfg.DefaultVoice
	if voice == "" {
		voice = defaultVoiceName
	}

	return &Provider{
		endpoint:     endpoint,
		defaultVoice: voice,
		dialer: dialerFunc(func(ctx context.Context, url string, header map[string][]string) (*websocket.Conn, error) {
			conn, _, err := (&websocket.Dialer{HandshakeTimeout: dialTimeout}).DialContext(ctx, url, header)

			return conn, err
		}),
	}
}

// withDialer returns a copy of p using dialer, for tests.
func (p *Provider) withDialer(d Dialer) *Provider {
	clone := *p
	clone.dialer = d

	return &clone
}

// NewForTest constructs a Provider whose dialer omits the
// TrustedClientToken/ConnectionId query parameters the production dialer
// appends, pointed instead directly at cfg.Endpoint (a ws:// test server
// URL) with no extra handshake headers.
func NewForTest(cfg Config) *Provider {
	p := New(cfg)

	endpoint := cfg.Endpoint

	return p.withDialer(dialerFunc(func(ctx context.Context, _ string, header map[string][]string) (*websocket.Conn, error) {
		conn, _, err := (&websocket.Dialer{HandshakeTimeout: dialTimeout}).DialContext(ctx, endpoint, header)

		return conn, err
	}))
}

// Describe returns the Edge provider's static metadata.
func (p *Provider) Describe() core.ProviderDescriptor {
	return core.ProviderDescriptor{
		ID:                providerID,
		DisplayName:       "Microsoft Edge",
		RequiresNetwork:   true,
		RequiresAPIKey:    false,
		SupportedFormats:  []core.AudioFormat{core.FormatMP3, core.FormatWAV, core.FormatOGG},
		SupportsStreaming: true,
		SupportsCloning:   false,
		SupportsSSML:      true,
	}
}

// ListVoices returns the fixed representative catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]core.VoiceRecord, error) {
	return defaultVoices, nil
}

// ValidateOptions implements core.Provider; the Edge provider accepts no
// free-form options beyond rate/pitch, which travel on TextRequest itself.
func (p *Provider) ValidateOptions(opts map[string]any) (map[string]any, error) {
	if len(opts) > 0 {
		names := make([]string, 0, len(opts))
		for k := range opts {
			names = append(names, k)
		}

		return nil, core.NewBadOptionError(fmt.Sprintf("edge provider accepts no options, got %v", names), nil)
	}

	return map[string]any{}, nil
}

// Synthesize implements core.Provider. It dials the websocket endpoint,
// sends the speech.config and ssml control messages, then drains chunks
// off the connection in production order, piping each to target.Writer as
// it arrives when streaming, or buffering to a temp file and renaming it
// into place atomically when not.
func (p *Provider) Synthesize(ctx context.Context, req core.TextRequest, target core.SynthesisTarget) error {
	connectionID := newConnectionID()

	conn, err := p.dialer.DialContext(ctx, dialURL(p.endpoint, connectionID), nil)
	if err != nil {
		if ctx.Err() != nil {
			return core.NewCancelledError("synthesis cancelled before connect", err)
		}

		return core.NewNetworkError(providerID, "websocket dial failed", err)
	}

	defer conn.Close()

	watchCancel(ctx, conn)

	if err := sendSpeechConfig(conn); err != nil {
		return core.NewNetworkError(providerID, "failed to send speech config", err)
	}

	requestID := newConnectionID()
	ssml := buildSSML(req, p.defaultVoice)

	if err := sendSSMLRequest(conn, requestID, ssml); err != nil {
		return core.NewNetworkError(providerID, "failed to send ssml request", err)
	}

	if target.Streaming() {
		return drainToWriter(conn, target.Writer, requestID)
	}

	return drainToFile(conn, target.Path, requestID)
}

// newConnectionID mints a 32-hex-char id the way the edge service expects,
// using crypto/rand-free time-and-counter entropy since the id only needs
// to be unique per connection, not unguessable.
var idCounter struct {
	mu sync.Mutex
	n  uint64
}

func newConnectionID() string {
	idCounter.mu.Lock()
	idCounter.n++
	n := idCounter.n
	idCounter.mu.Unlock()

	return fmt.Sprintf("%032x", time.Now().UnixNano()^int64(n))[:32]
}

func dialURL(endpoint, connectionID string) string {
	return fmt.Sprintf("%s?TrustedClientToken=%s&ConnectionId=%s", endpoint, trustedToken, connectionID)
}

func watchCancel(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
}

func sendSpeechConfig(conn *websocket.Conn) error {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	body := `{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":false,"wordBoundaryEnabled":false},"outputFormat":"audio-24khz-48kbitrate-mono-mp3"}}}}`

	message := strings.Join([]string{
		"X-Timestamp:" + timestamp,
		"Content-Type:application/json; charset=utf-8",
		"Path:" + pathSpeechConfig,
	}, headerSeparator) + headerBodySplit + body

	return conn.WriteMessage(websocket.TextMessage, []byte(message))
}

func sendSSMLRequest(conn *websocket.Conn, requestID, ssml string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339)

	message := strings.Join([]string{
		"X-RequestId:" + requestID,
		"X-Timestamp:" + timestamp,
		"Content-Type:application/ssml+xml",
		"Path:" + pathSSML,
	}, headerSeparator) + headerBodySplit + ssml

	return conn.WriteMessage(websocket.TextMessage, []byte(message))
}

// buildSSML wraps req.Text in a <speak> document, applying rate/pitch as
// prosody attributes, unless req.Text is already SSML per the
// whitespace-insensitive "<speak" auto-detection in SPEC_FULL §4.5.
func buildSSML(req core.TextRequest, fallbackVoice string) string {
	if strings.HasPrefix(strings.TrimSpace(req.Text), ssmlPrefix) {
		return req.Text
	}

	voice := fallbackVoice
	if req.Voice.Kind == core.VoiceNamed && req.Voice.VoiceName != "" {
		voice = req.Voice.VoiceName
	}

	rate := "default"
	if req.Rate.IsSet() {
		rate = fmt.Sprintf("%+.0f%%", req.Rate.Percent())
	}

	pitch := "default"
	if req.Pitch.IsSet() {
		pitch = fmt.Sprintf("%+.0fHz", req.Pitch.Hz())
	}

	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="en-US">`+
			`<voice name="%s"><prosody rate="%s" pitch="%s">%s</prosody></voice></speak>`,
		voice, rate, pitch, req.Text)
}

// chunkSink receives ordered audio chunks as the connection drains.
type chunkSink func(chunk []byte) error

func drainToWriter(conn *websocket.Conn, w io.Writer, requestID string) error {
	return drain(conn, requestID, func(chunk []byte) error {
		_, err := w.Write(chunk)

		return err
	})
}

func drainToFile(conn *websocket.Conn, path, requestID string) error {
	var buf strings.Builder

	err := drain(conn, requestID, func(chunk []byte) error {
		_, writeErr := buf.Write(chunk)

		return writeErr
	})
	if err != nil {
		return err
	}

	return atomicfile.WriteFromReader(path, strings.NewReader(buf.String()))
}

// drain reads multiplexed text/binary frames until turn.end, delivering
// every audio chunk to sink in the order the connection produced them.
func drain(conn *websocket.Conn, requestID string, sink chunkSink) error {
	_ = conn.SetReadDeadline(time.Now().Add(drainTimeout))

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return core.NewNetworkError(providerID, "websocket read failed", err)
		}

		switch kind {
		case websocket.TextMessage:
			path := headerValue(string(data), "Path")
			if path == pathTurnEnd {
				return nil
			}
		case websocket.BinaryMessage:
			chunk, chunkErr := extractAudioChunk(data)
			if chunkErr != nil {
				return chunkErr
			}

			if chunk == nil {
				continue
			}

			if err := sink(chunk); err != nil {
				return core.NewInternalError("failed to write edge audio chunk to sink", err)
			}
		}

		_ = requestID
	}
}

// extractAudioChunk strips the 2-byte big-endian header-length prefix and
// the "Path:audio\r\nX-RequestId:...\r\n\r\n" header block from a binary
// frame, returning the remaining raw audio bytes, or nil if the frame's
// Path is not "audio".
func extractAudioChunk(frame []byte) ([]byte, error) {
	if len(frame) < binaryHeaderSize {
		return nil, core.NewProviderError(providerID, "binary frame shorter than header-length prefix", nil, false)
	}

	headerLen := int(frame[0])<<8 | int(frame[1])
	if binaryHeaderSize+headerLen > len(frame) {
		return nil, core.NewProviderError(providerID, "binary frame header length exceeds frame size", nil, false)
	}

	header := string(frame[binaryHeaderSize : binaryHeaderSize+headerLen])
	if headerValue(header, "Path") != pathAudio {
		return nil, nil
	}

	return frame[binaryHeaderSize+headerLen:], nil
}

// headerValue parses a "Key:value\r\n..." header block and returns value
// for the first matching key, case-sensitively, matching the header shape
// the service itself emits.
func headerValue(block, key string) string {
	scanner := bufio.NewScanner(strings.NewReader(block))

	prefix := key + ":"

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}

	return ""
}
