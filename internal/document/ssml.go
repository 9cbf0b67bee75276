package document

import (
	"fmt"
	"regexp"
	"strings"
)

// SSML Emitter (SPEC_FULL §4.14): emits either plain concatenated text or
// platform-specific SSML. Timing values are grounded on
// original_source/tts_cli/speech_synthesis/speech_markdown.py's
// timing_map/emotion_map (pause-after per element type, emotion-to-markup
// mapping); that module only ever produced its own "speech markdown"
// placeholder syntax (its own convert_to_ssml was a stub), so the actual
// per-platform SSML dialect tables below are new, built against each
// platform's real markup per SPEC_FULL §4.14.

// EmitPlainText joins every element's text content with a single space,
// the "no markup" emission mode.
func EmitPlainText(elements []AnnotatedElement) string {
	parts := make([]string, 0, len(elements))

	for _, ae := range elements {
		if ae.Kind == KindBreak || ae.Content == "" {
			continue
		}

		parts = append(parts, ae.Content)
	}

	return strings.Join(parts, " ")
}

// EmitSSML renders elements as a single well-formed <speak> document in
// platform's dialect.
func EmitSSML(elements []AnnotatedElement, platform Platform) string {
	var b strings.Builder

	b.WriteString(speakOpenTag(platform))

	for _, ae := range elements {
		if bt := breakTag(ae.PauseBeforeMS); bt != "" {
			b.WriteString(bt)
		}

		if markup := elementMarkup(ae, platform); markup != "" {
			b.WriteString(markup)
			b.WriteString(" ")
		}

		if bt := breakTag(ae.PauseAfterMS); bt != "" {
			b.WriteString(bt)
		}
	}

	b.WriteString("</speak>")

	return b.String()
}

func speakOpenTag(platform Platform) string {
	switch platform {
	case PlatformAzure:
		return `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="en-US">`
	case PlatformGoogle, PlatformAmazon:
		return `<speak>`
	default:
		return `<speak version="1.0" xml:lang="en-US">`
	}
}

func breakTag(ms int) string {
	if ms <= 0 {
		return ""
	}

	return fmt.Sprintf(`<break time="%dms"/>`, ms)
}

// elementMarkup renders one element's text content wrapped in the
// platform's prosody/emphasis/say-as markup. Code content always gets
// say-as verbatim (spoken literally, never interpreted); everything else
// gets the platform's emphasis equivalent for the element's computed
// emphasis tier. Break elements carry no text and contribute nothing.
func elementMarkup(ae AnnotatedElement, platform Platform) string {
	if ae.Kind == KindBreak || ae.Content == "" {
		return ""
	}

	escaped := escapeXML(ae.Content)

	if ae.Kind == KindCode || ae.Kind == KindCodeBlock {
		return fmt.Sprintf(`<say-as interpret-as="verbatim">%s</say-as>`, escaped)
	}

	return wrapEmphasis(platform, emphasisTier(ae.Emphasis), escaped)
}

func emphasisTier(e float64) string {
	switch {
	case e <= 0:
		return "none"
	case e < 0.4:
		return "reduced"
	case e < 0.7:
		return "moderate"
	default:
		return "strong"
	}
}

// wrapEmphasis is where the platform dialects genuinely diverge: Azure's
// mstts:express-as takes a named style, Google Cloud TTS has no
// <emphasis> support on some voices so a <prosody rate> substitutes, and
// Amazon Polly / the generic fallback both support <emphasis> directly.
func wrapEmphasis(platform Platform, tier, escaped string) string {
	if tier == "none" {
		return escaped
	}

	switch platform {
	case PlatformAzure:
		return fmt.Sprintf(`<mstts:express-as style="%s">%s</mstts:express-as>`, azureStyleFor(tier), escaped)
	case PlatformGoogle:
		return fmt.Sprintf(`<prosody rate="%s">%s</prosody>`, googleRateFor(tier), escaped)
	default:
		return fmt.Sprintf(`<emphasis level="%s">%s</emphasis>`, tier, escaped)
	}
}

func azureStyleFor(tier string) string {
	switch tier {
	case "strong":
		return "excited"
	case "moderate":
		return "friendly"
	default:
		return "calm"
	}
}

func googleRateFor(tier string) string {
	switch tier {
	case "strong":
		return "115%"
	case "moderate":
		return "105%"
	default:
		return "95%"
	}
}

var xmlEscapes = map[rune]string{
	'&':  "&amp;",
	'<':  "&lt;",
	'>':  "&gt;",
	'"':  "&quot;",
	'\'': "&apos;",
}

func escapeXML(s string) string {
	var b strings.Builder

	for _, r := range s {
		if esc, ok := xmlEscapes[r]; ok {
			b.WriteString(esc)
		} else {
			b.WriteRune(r)
		}
	}

	return b.String()
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

var xmlUnescapes = []struct {
	entity string
	char   string
}{
	{"&amp;", "&"},
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", `"`},
	{"&apos;", "'"},
}

// StripSSML strips every tag from ssml and unescapes entities, leaving
// only the spoken text content. Used to verify SPEC_FULL §4.14's
// round-trip invariant: the concatenation of element text contents, in
// order, equals the <speak>-stripped text content up to whitespace
// normalisation.
func StripSSML(ssml string) string {
	stripped := tagPattern.ReplaceAllString(ssml, " ")

	for _, u := range xmlUnescapes {
		stripped = strings.ReplaceAll(stripped, u.entity, u.char)
	}

	return normaliseWhitespace(stripped)
}

func normaliseWhitespace(s string) string {
	fields := strings.Fields(s)

	return strings.Join(fields, " ")
}
