// Package document implements the document-to-speech pipeline
// (SPEC_FULL §4.11-§4.15): format conversion, semantic parsing, emotion
// classification, SSML emission, and a content-addressed cache of parse
// results. Grounded throughout on original_source/tts_cli and
// original_source/src/tts's document_processing and speech_synthesis
// packages, reauthored in Go idiom per component.
package document

// ElementKind discriminates a Semantic Element's variant (SPEC_FULL §3).
type ElementKind int

const (
	KindParagraph ElementKind = iota
	KindHeading
	KindBold
	KindItalic
	KindCode
	KindCodeBlock
	KindListItem
	KindLink
	KindBreak
)

func (k ElementKind) String() string {
	switch k {
	case KindHeading:
		return "heading"
	case KindBold:
		return "bold"
	case KindItalic:
		return "italic"
	case KindCode:
		return "code"
	case KindCodeBlock:
		return "code_block"
	case KindListItem:
		return "list_item"
	case KindLink:
		return "link"
	case KindBreak:
		return "break"
	default:
		return "paragraph"
	}
}

// Element is a Semantic Element: a typed fragment of document structure
// produced by the parser (SPEC_FULL §3, §4.12). Level is only meaningful
// for KindHeading (1..6). Target is only meaningful for KindLink.
type Element struct {
	Kind    ElementKind
	Content string
	Level   int
	Target  string
}

// EmotionProfile is the preset mapping from document class to prosody
// annotations (SPEC_FULL §3, §4.13).
type EmotionProfile int

const (
	ProfileAuto EmotionProfile = iota
	ProfileTechnical
	ProfileMarketing
	ProfileNarrative
	ProfileTutorial
)

func (p EmotionProfile) String() string {
	switch p {
	case ProfileTechnical:
		return "technical"
	case ProfileMarketing:
		return "marketing"
	case ProfileNarrative:
		return "narrative"
	case ProfileTutorial:
		return "tutorial"
	default:
		return "auto"
	}
}

// ParseProfile parses the config/CLI-facing profile name, defaulting to
// ProfileAuto for an empty or unrecognised string.
func ParseProfile(name string) EmotionProfile {
	switch name {
	case "technical":
		return ProfileTechnical
	case "marketing":
		return ProfileMarketing
	case "narrative":
		return ProfileNarrative
	case "tutorial":
		return ProfileTutorial
	default:
		return ProfileAuto
	}
}

// AnnotatedElement is a Semantic Element plus the prosody annotation the
// emotion classifier attaches (SPEC_FULL §3, §4.13).
type AnnotatedElement struct {
	Element
	Profile        EmotionProfile
	Emphasis       float64
	PauseBeforeMS  int
	PauseAfterMS   int
}

// Platform is an SSML dialect the emitter targets (SPEC_FULL §4.14).
type Platform int

const (
	PlatformGeneric Platform = iota
	PlatformAzure
	PlatformGoogle
	PlatformAmazon
)

func (p Platform) String() string {
	switch p {
	case PlatformAzure:
		return "azure"
	case PlatformGoogle:
		return "google"
	case PlatformAmazon:
		return "amazon"
	default:
		return "generic"
	}
}

// ParsePlatform parses the config/CLI-facing platform name, defaulting to
// PlatformGeneric for an empty or unrecognised string.
func ParsePlatform(name string) Platform {
	switch name {
	case "azure":
		return PlatformAzure
	case "google":
		return PlatformGoogle
	case "amazon":
		return PlatformAmazon
	default:
		return PlatformGeneric
	}
}
