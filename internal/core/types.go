// Package core holds the domain types and the Provider Contract (SPEC_FULL
// §3, §4.3) shared by every synthesis back-end and the orchestrator. It has
// no dependency on any individual provider, the playback manager, or the
// document pipeline, so each of those packages imports core without a
// cycle.
package core

import (
	"context"
	"fmt"
	"io"
)

// AudioFormat is the container/codec enumeration from SPEC_FULL §3.
type AudioFormat string

const (
	FormatMP3  AudioFormat = "mp3"
	FormatWAV  AudioFormat = "wav"
	FormatOGG  AudioFormat = "ogg"
	FormatFLAC AudioFormat = "flac"
)

// DefaultAudioFormat is the format used when a request does not specify one.
const DefaultAudioFormat = FormatMP3

// ValidAudioFormat reports whether f is one of the four supported
// containers.
func ValidAudioFormat(f AudioFormat) bool {
	switch f {
	case FormatMP3, FormatWAV, FormatOGG, FormatFLAC:
		return true
	default:
		return false
	}
}

// Extension returns the filesystem extension (with leading dot) for f.
func (f AudioFormat) Extension() string {
	return "." + string(f)
}

// VoiceKind tags a VoiceRef's variant.
type VoiceKind int

const (
	// VoiceDefault selects the provider's default voice.
	VoiceDefault VoiceKind = iota
	// VoiceNamed selects voice_name from provider_id's catalogue.
	VoiceNamed
	// VoiceCloneFrom selects a voice derived from a reference audio file.
	VoiceCloneFrom
)

// VoiceRef is the tagged value described in SPEC_FULL §3.
type VoiceRef struct {
	Kind       VoiceKind
	ProviderID string // set for VoiceNamed
	VoiceName  string // set for VoiceNamed
	Path       string // set for VoiceCloneFrom
}

// String renders the canonical textual form of a VoiceRef, the inverse of
// the parsing algorithm in SPEC_FULL §4.4 for the Named case.
func (v VoiceRef) String() string {
	switch v.Kind {
	case VoiceNamed:
		return fmt.Sprintf("%s:%s", v.ProviderID, v.VoiceName)
	case VoiceCloneFrom:
		return v.Path
	default:
		return ""
	}
}

// RateAdjust is a percentage delta from baseline in [-50, 200], or unset.
type RateAdjust struct {
	percent float64
	set     bool
}

// RateBounds are the inclusive percentage bounds from SPEC_FULL §3.
const (
	MinRatePercent = -50.0
	MaxRatePercent = 200.0
)

// UnsetRate returns the "no adjustment requested" value.
func UnsetRate() RateAdjust { return RateAdjust{} }

// NewRateAdjust validates percent against [-50, 200] and returns a set
// RateAdjust, or a BadOption error.
func NewRateAdjust(percent float64) (RateAdjust, error) {
	if percent < MinRatePercent || percent > MaxRatePercent {
		return RateAdjust{}, NewBadOptionError(
			fmt.Sprintf("rate %.1f%% out of range [%.0f, %.0f]", percent, MinRatePercent, MaxRatePercent),
			nil,
		)
	}

	return RateAdjust{percent: percent, set: true}, nil
}

// IsSet reports whether an adjustment was requested.
func (r RateAdjust) IsSet() bool { return r.set }

// Percent returns the percentage delta; only meaningful when IsSet.
func (r RateAdjust) Percent() float64 { return r.percent }

// PitchAdjust is a frequency delta in Hz in [-50, 50], or unset.
type PitchAdjust struct {
	hz  float64
	set bool
}

// PitchBounds are the inclusive Hz bounds from SPEC_FULL §3.
const (
	MinPitchHz = -50.0
	MaxPitchHz = 50.0
)

// UnsetPitch returns the "no adjustment requested" value.
func UnsetPitch() PitchAdjust { return PitchAdjust{} }

// NewPitchAdjust validates hz against [-50, 50] and returns a set
// PitchAdjust, or a BadOption error.
func NewPitchAdjust(hz float64) (PitchAdjust, error) {
	if hz < MinPitchHz || hz > MaxPitchHz {
		return PitchAdjust{}, NewBadOptionError(
			fmt.Sprintf("pitch %.1fHz out of range [%.0f, %.0f]", hz, MinPitchHz, MaxPitchHz),
			nil,
		)
	}

	return PitchAdjust{hz: hz, set: true}, nil
}

// IsSet reports whether an adjustment was requested.
func (p PitchAdjust) IsSet() bool { return p.set }

// Hz returns the frequency delta; only meaningful when IsSet.
func (p PitchAdjust) Hz() float64 { return p.hz }

// TextRequest is the immutable record from SPEC_FULL §3, created once at
// orchestration entry and consumed by exactly one provider call.
type TextRequest struct {
	Text            string
	Voice           VoiceRef
	Rate            RateAdjust
	Pitch           PitchAdjust
	Format          AudioFormat
	Stream          bool
	ProviderOptions map[string]any
}

// OptionType enumerates the scalar kinds an OptionSpec may constrain.
type OptionType int

const (
	OptionString OptionType = iota
	OptionFloat
	OptionInt
	OptionBool
)

// OptionSpec describes one entry in a Provider Descriptor's option schema
// (SPEC_FULL §3, Design Notes "Dynamic option maps").
type OptionSpec struct {
	Name    string
	Type    OptionType
	Min     float64
	Max     float64
	Default any
}

// ProviderDescriptor is the per-provider static metadata from SPEC_FULL §3.
type ProviderDescriptor struct {
	ID                 string
	DisplayName        string
	RequiresNetwork    bool
	RequiresAPIKey     bool
	SupportedFormats   []AudioFormat
	SupportsStreaming  bool
	SupportsCloning    bool
	SupportsSSML       bool
	OptionSchema       map[string]OptionSpec
}

// SupportsFormat reports whether f is in the descriptor's supported set.
func (d ProviderDescriptor) SupportsFormat(f AudioFormat) bool {
	for _, supported := range d.SupportedFormats {
		if supported == f {
			return true
		}
	}

	return false
}

// VoiceRecord is one entry of a provider's voice catalogue, returned by
// ListVoices.
type VoiceRecord struct {
	Name        string
	DisplayName string
	Locale      string
}

// SynthesisTarget is the "byte-sink-or-path" destination named in the
// Provider Contract (SPEC_FULL §4.3). Exactly one of Writer or Path is set,
// matching req.Stream: a streaming request carries Writer (owned by the
// caller, typically the playback manager's open_stream writer); a
// non-streaming request carries Path and the provider must write a
// complete, valid audio container there before returning.
type SynthesisTarget struct {
	Writer io.Writer
	Path   string
}

// Streaming reports whether the target is a live sink rather than a path.
func (t SynthesisTarget) Streaming() bool { return t.Writer != nil }

// Provider is the single interface every synthesis back-end implements
// (SPEC_FULL §4.3, Design Notes "Polymorphism across providers"). Providers
// share no state; the registry in the providers package owns each handle's
// lifetime.
type Provider interface {
	Describe() ProviderDescriptor
	Synthesize(ctx context.Context, req TextRequest, target SynthesisTarget) error
	ListVoices(ctx context.Context) ([]VoiceRecord, error)
	ValidateOptions(opts map[string]any) (map[string]any, error)
}
