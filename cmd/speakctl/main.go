// Package main is the speakctl CLI entry point (SPEC_FULL §4.18): a thin
// caller that loads configuration, builds the provider registry and
// orchestrator, parses one fixed flag set, and makes exactly one C16 call.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/speakctl/internal/config"
	"github.com/book-expert/speakctl/internal/core"
	"github.com/book-expert/speakctl/internal/document"
	"github.com/book-expert/speakctl/internal/orchestrator"
	"github.com/book-expert/speakctl/internal/playback"
	"github.com/book-expert/speakctl/internal/providers"
	"github.com/book-expert/speakctl/internal/providers/edge"
	"github.com/book-expert/speakctl/internal/providers/elevenlabs"
	"github.com/book-expert/speakctl/internal/providers/google"
	"github.com/book-expert/speakctl/internal/providers/local"
	"github.com/book-expert/speakctl/internal/providers/openai"
	"github.com/book-expert/speakctl/internal/transcode"
	"github.com/book-expert/speakctl/internal/voicecache"
)

// Flag names and descriptions.
const (
	flagText           = "text"
	flagFile           = "file"
	flagVoice          = "voice"
	flagRate           = "rate"
	flagPitch          = "pitch"
	flagFormat         = "format"
	flagStream         = "stream"
	flagOutput         = "output"
	flagDocument       = "document"
	flagSSMLPlatform   = "ssml-platform"
	flagEmotionProfile = "emotion-profile"
	flagHealth         = "health"
)

const (
	flagTextDesc           = "Literal text to synthesize"
	flagFileDesc           = "Path to a plain-text file to synthesize"
	flagVoiceDesc          = "Voice reference: \"\", \"<provider>:<name>\", a catalogue name, or a reference audio path"
	flagRateDesc           = "Rate adjustment percent, in [-50, 200]"
	flagPitchDesc          = "Pitch adjustment in Hz, in [-50, 50]"
	flagFormatDesc         = "Output audio format: mp3, wav, ogg, or flac"
	flagStreamDesc         = "Stream audio to the default playback device instead of writing a file"
	flagOutputDesc         = "Output file path (ignored when --stream is set and no path is given)"
	flagDocumentDesc       = "Path to a document (markdown, HTML, or JSON) to synthesize via the document pipeline"
	flagSSMLPlatformDesc   = "SSML dialect for document mode: generic, azure, google, or amazon"
	flagEmotionProfileDesc = "Emotion profile for document mode: auto, technical, marketing, narrative, or tutorial"
	flagHealthDesc         = "Resolve the target provider and report whether it is reachable, then exit"
)

// Error and log messages.
const (
	errFailedToLoadConfig   = "failed to load configuration: %w"
	errFailedToInitLogger   = "failed to initialize logger: %w"
	errNoInputSpecified     = "one of --text, --file, or --document must be provided"
	errMultipleInputsGiven  = "only one of --text, --file, or --document may be provided"
	errOutputRequired       = "--output is required unless --stream is set"
	errFailedToReadInput    = "failed to read input file %q: %w"
	errInvalidRate          = "invalid --rate value %q: %w"
	errInvalidPitch         = "invalid --pitch value %q: %w"
	errInvalidFormat        = "invalid --format value %q"
	logOrchestratorReady    = "speakctl initialized, default provider=%s"
	logSynthesisSucceeded   = "synthesis succeeded"
	logHealthProviderOK     = "provider %q is reachable"
)

const bootstrapLogFile = "speakctl-bootstrap.log"

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text           string
	file           string
	document       string
	voice          string
	rate           string
	pitch          string
	format         string
	stream         bool
	output         string
	ssmlPlatform   string
	emotionProfile string
	health         bool
}

func main() {
	os.Exit(run())
}

// run is the entire application. It returns a process exit code rather
// than calling os.Exit itself, so tests can call it directly.
func run() int {
	flags := parseFlags()

	cfg, log, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "speakctl: %v\n", err)

		return exitCodeFor(err)
	}
	defer log.Close()

	registry, orch, err := build(cfg, log)
	if err != nil {
		log.Error("failed to initialize speakctl: %v", err)

		return exitCodeFor(err)
	}

	log.Info(logOrchestratorReady, cfg.DefaultProviderID())

	ctx := context.Background()

	if flags.health {
		return handleHealth(ctx, registry, cfg, log, flags)
	}

	req, err := buildRequest(ctx, registry, flags)
	if err != nil {
		log.Error("invalid request: %v", err)

		return exitCodeFor(err)
	}

	if err := orch.Synthesize(ctx, req); err != nil {
		log.Error("synthesis failed: %v", err)

		return exitCodeFor(err)
	}

	log.Info(logSynthesisSucceeded)

	return 0
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.file, flagFile, "", flagFileDesc)
	flag.StringVar(&flags.document, flagDocument, "", flagDocumentDesc)
	flag.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flag.StringVar(&flags.rate, flagRate, "", flagRateDesc)
	flag.StringVar(&flags.pitch, flagPitch, "", flagPitchDesc)
	flag.StringVar(&flags.format, flagFormat, "mp3", flagFormatDesc)
	flag.BoolVar(&flags.stream, flagStream, false, flagStreamDesc)
	flag.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flag.StringVar(&flags.ssmlPlatform, flagSSMLPlatform, "generic", flagSSMLPlatformDesc)
	flag.StringVar(&flags.emotionProfile, flagEmotionProfile, "auto", flagEmotionProfileDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.Parse()

	return flags
}

// setup implements the two-phase logger bootstrap from SPEC_FULL §4.17: a
// bootstrap logger reports config-load failures; once Config is loaded, a
// final logger is built from its log section.
func setup() (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToLoadConfig, err)
	}

	_ = bootstrapLog.Close()

	finalLog, err := logger.New(cfg.Log.Destination, "speakctl.log")
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	return cfg, finalLog, nil
}

// build constructs the provider registry and the orchestrator from cfg,
// wiring every synthesis back-end (SPEC_FULL §4.4) plus the playback
// manager (C1), transcoder (C2), and document cache (C15) the
// orchestrator depends on.
func build(cfg *config.Config, log *logger.Logger) (*providers.Registry, *orchestrator.Orchestrator, error) {
	registry := providers.NewRegistry()

	edgeCfg := cfg.Provider("edge")
	registry.Register("edge", func() (core.Provider, error) {
		return edge.New(edge.Config{Endpoint: edgeCfg.Endpoint, DefaultVoice: edgeCfg.DefaultVoice}), nil
	})

	openaiCfg := cfg.Provider("openai")
	registry.Register("openai", func() (core.Provider, error) {
		return openai.New(openai.Config{
			APIKey:       openaiCfg.APIKey,
			Endpoint:     openaiCfg.Endpoint,
			DefaultVoice: openaiCfg.DefaultVoice,
		}, log), nil
	})

	elevenlabsCfg := cfg.Provider("elevenlabs")
	registry.Register("elevenlabs", func() (core.Provider, error) {
		return elevenlabs.New(elevenlabs.Config{APIKey: elevenlabsCfg.APIKey, Endpoint: elevenlabsCfg.Endpoint}), nil
	})

	googleCfg := cfg.Provider("google")
	registry.Register("google", func() (core.Provider, error) {
		var serviceAccountJSON []byte

		if googleCfg.ServiceAccountPath != "" {
			data, err := os.ReadFile(googleCfg.ServiceAccountPath)
			if err != nil {
				return nil, core.NewInternalError("failed to read google service account file", err)
			}

			serviceAccountJSON = data
		}

		return google.New(google.Config{
			APIKey:             googleCfg.APIKey,
			ServiceAccountJSON: serviceAccountJSON,
			Endpoint:           googleCfg.Endpoint,
			DefaultVoice:       googleCfg.DefaultVoice,
		})
	})

	localCfg := cfg.LocalServer()
	registry.Register("local", func() (core.Provider, error) {
		localProvider := local.New(local.Config{
			Server: local.ServerConfig{
				Host:                  localCfg.Host,
				Port:                  localCfg.Port,
				Binary:                localCfg.Binary,
				StartupTimeoutSeconds: localCfg.StartupTimeoutSeconds,
			},
		}, log)

		cacheMgr, err := voicecache.New(localProvider, cfg.Cache().VoiceCacheJournalPath, log)
		if err != nil {
			return nil, err
		}

		localProvider.SetResolver(cacheMgr)

		return localProvider, nil
	})

	documentCache, err := document.NewCache(cfg.Cache().DocumentCacheDir)
	if err != nil {
		return nil, nil, err
	}

	pb := playback.New(cfg.Audio().DecoderBinary, log)
	tc := transcode.New(cfg.Audio().TranscoderBinary, log)

	orch := orchestrator.New(registry, pb, tc, documentCache, cfg.DefaultProviderID(), log)

	return registry, orch, nil
}

// buildRequest validates flag combinations and assembles one
// orchestrator.Request, per SPEC_FULL §4.18 "the CLI never embeds
// business logic".
func buildRequest(ctx context.Context, registry *providers.Registry, flags appFlags) (orchestrator.Request, error) {
	inputsGiven := countNonEmpty(flags.text, flags.file, flags.document)

	if inputsGiven == 0 {
		return orchestrator.Request{}, core.NewBadOptionError(errNoInputSpecified, nil)
	}

	if inputsGiven > 1 {
		return orchestrator.Request{}, core.NewBadOptionError(errMultipleInputsGiven, nil)
	}

	if !flags.stream && flags.output == "" {
		return orchestrator.Request{}, core.NewBadOptionError(errOutputRequired, nil)
	}

	voiceRef, err := registry.ParseVoiceRef(ctx, flags.voice)
	if err != nil {
		return orchestrator.Request{}, err
	}

	rate, err := parseRate(flags.rate)
	if err != nil {
		return orchestrator.Request{}, err
	}

	pitch, err := parsePitch(flags.pitch)
	if err != nil {
		return orchestrator.Request{}, err
	}

	format, err := parseFormat(flags.format)
	if err != nil {
		return orchestrator.Request{}, err
	}

	req := orchestrator.Request{
		Voice:          voiceRef,
		Rate:           rate,
		Pitch:          pitch,
		Format:         format,
		Stream:         flags.stream,
		Output:         flags.output,
		SSMLPlatform:   document.ParsePlatform(flags.ssmlPlatform),
		EmotionProfile: document.ParseProfile(flags.emotionProfile),
	}

	switch {
	case flags.text != "":
		req.Text = flags.text
	case flags.file != "":
		data, readErr := os.ReadFile(flags.file)
		if readErr != nil {
			return orchestrator.Request{}, fmt.Errorf(errFailedToReadInput, flags.file, readErr)
		}

		req.Text = string(data)
	case flags.document != "":
		data, readErr := os.ReadFile(flags.document)
		if readErr != nil {
			return orchestrator.Request{}, fmt.Errorf(errFailedToReadInput, flags.document, readErr)
		}

		req.Document = string(data)
		req.SSML = true
	}

	return req, nil
}

func countNonEmpty(values ...string) int {
	n := 0

	for _, v := range values {
		if v != "" {
			n++
		}
	}

	return n
}

func parseRate(s string) (core.RateAdjust, error) {
	if s == "" {
		return core.UnsetRate(), nil
	}

	percent, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return core.RateAdjust{}, fmt.Errorf(errInvalidRate, s, err)
	}

	return core.NewRateAdjust(percent)
}

func parsePitch(s string) (core.PitchAdjust, error) {
	if s == "" {
		return core.UnsetPitch(), nil
	}

	hz, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return core.PitchAdjust{}, fmt.Errorf(errInvalidPitch, s, err)
	}

	return core.NewPitchAdjust(hz)
}

func parseFormat(s string) (core.AudioFormat, error) {
	format := core.AudioFormat(s)
	if !core.ValidAudioFormat(format) {
		return "", core.NewBadOptionError(fmt.Sprintf(errInvalidFormat, s), []string{"mp3", "wav", "ogg", "flac"})
	}

	return format, nil
}

// handleHealth resolves the flag-selected (or default) provider and
// reports whether ListVoices succeeds within a bounded timeout.
func handleHealth(ctx context.Context, registry *providers.Registry, cfg *config.Config, log *logger.Logger, flags appFlags) int {
	providerID := cfg.DefaultProviderID()

	if flags.voice != "" {
		if voiceRef, err := registry.ParseVoiceRef(ctx, flags.voice); err == nil && voiceRef.Kind == core.VoiceNamed {
			providerID = voiceRef.ProviderID
		}
	}

	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	provider, err := registry.Resolve(providerID)
	if err != nil {
		log.Error("health check failed to resolve provider %q: %v", providerID, err)

		return exitCodeFor(err)
	}

	if _, err := provider.ListVoices(healthCtx); err != nil {
		log.Error("health check failed for provider %q: %v", providerID, err)
		fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)

		return exitCodeFor(err)
	}

	log.Info(logHealthProviderOK, providerID)
	fmt.Printf("healthy: %s\n", providerID)

	return 0
}

// exitCodeFor maps a taxonomy error's Kind to a process exit code
// (SPEC_FULL §4.18: "maps the returned error's taxonomy kind to a
// process exit code"). Non-taxonomy errors (flag parsing, I/O before a
// provider is even involved) exit 1.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	taxErr, ok := core.AsError(err)
	if !ok {
		return 1
	}

	switch taxErr.Kind {
	case core.KindAuthentication:
		return 2
	case core.KindNetwork:
		return 3
	case core.KindQuota:
		return 4
	case core.KindVoice:
		return 5
	case core.KindFormat:
		return 6
	case core.KindDependency:
		return 7
	case core.KindProvider:
		return 8
	case core.KindBadOption:
		return 9
	case core.KindCancelled:
		return 130
	default:
		return 1
	}
}
