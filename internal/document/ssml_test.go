package document_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speakctl/internal/document"
)

func TestEmitPlainText_JoinsContentAndSkipsBreaks(t *testing.T) {
	elements := []document.AnnotatedElement{
		{Element: document.Element{Kind: document.KindHeading, Content: "Intro"}},
		{Element: document.Element{Kind: document.KindBreak}},
		{Element: document.Element{Kind: document.KindParagraph, Content: "Hello world"}},
	}

	got := document.EmitPlainText(elements)

	assert.Equal(t, "Intro Hello world", got)
}

func TestEmitSSML_WrapsInSpeakTag(t *testing.T) {
	elements := []document.AnnotatedElement{
		{Element: document.Element{Kind: document.KindParagraph, Content: "hello"}, Emphasis: 0.1},
	}

	got := document.EmitSSML(elements, document.PlatformGeneric)

	assert.True(t, strings.HasPrefix(got, "<speak"))
	assert.True(t, strings.HasSuffix(got, "</speak>"))
}

func TestEmitSSML_CodeUsesVerbatimSayAs(t *testing.T) {
	elements := []document.AnnotatedElement{
		{Element: document.Element{Kind: document.KindCode, Content: "go test"}},
	}

	got := document.EmitSSML(elements, document.PlatformGeneric)

	assert.Contains(t, got, `<say-as interpret-as="verbatim">go test</say-as>`)
}

func TestEmitSSML_AzureUsesExpressAs(t *testing.T) {
	elements := []document.AnnotatedElement{
		{Element: document.Element{Kind: document.KindBold, Content: "big news"}, Emphasis: 0.9},
	}

	got := document.EmitSSML(elements, document.PlatformAzure)

	assert.Contains(t, got, "mstts:express-as")
	assert.Contains(t, got, `style="excited"`)
}

func TestEmitSSML_GoogleUsesProsodyRate(t *testing.T) {
	elements := []document.AnnotatedElement{
		{Element: document.Element{Kind: document.KindBold, Content: "big news"}, Emphasis: 0.9},
	}

	got := document.EmitSSML(elements, document.PlatformGoogle)

	assert.Contains(t, got, "<prosody rate=")
}

func TestEmitSSML_InsertsBreaksForPauses(t *testing.T) {
	elements := []document.AnnotatedElement{
		{Element: document.Element{Kind: document.KindHeading, Content: "Title"}, PauseAfterMS: 800},
	}

	got := document.EmitSSML(elements, document.PlatformGeneric)

	assert.Contains(t, got, `<break time="800ms"/>`)
}

func TestEmitSSML_EscapesXMLSpecialCharacters(t *testing.T) {
	elements := []document.AnnotatedElement{
		{Element: document.Element{Kind: document.KindParagraph, Content: `Tom & Jerry's "great" <show>`}},
	}

	got := document.EmitSSML(elements, document.PlatformGeneric)

	assert.NotContains(t, got, "Tom & Jerry")
	assert.Contains(t, got, "&amp;")
	assert.Contains(t, got, "&quot;")
	assert.Contains(t, got, "&apos;")
}

func TestStripSSML_RoundTripsToOriginalTextContent(t *testing.T) {
	elements := document.Classify(document.Parse("# Title\n\nHello **world**, this is a test with `code`."), document.ProfileAuto)

	for _, platform := range []document.Platform{
		document.PlatformGeneric,
		document.PlatformAzure,
		document.PlatformGoogle,
		document.PlatformAmazon,
	} {
		ssml := document.EmitSSML(elements, platform)
		plain := document.EmitPlainText(elements)

		require.Equal(t, normalise(plain), normalise(document.StripSSML(ssml)), "platform=%v", platform)
	}
}

func normalise(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
