package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speakctl/internal/document"
)

func TestClassify_ExplicitProfileSkipsScoring(t *testing.T) {
	elements := []document.Element{{Kind: document.KindParagraph, Content: "hello"}}

	annotated := document.Classify(elements, document.ProfileMarketing)

	require.Len(t, annotated, 1)
	assert.Equal(t, document.ProfileMarketing, annotated[0].Profile)
}

func TestClassify_AutoPicksTechnicalForCodeHeavyDoc(t *testing.T) {
	elements := document.Parse("# API Reference\n\n```\nfunc Foo() error\n```\n\nCall the `function` to use the API.")

	annotated := document.Classify(elements, document.ProfileAuto)

	require.NotEmpty(t, annotated)
	assert.Equal(t, document.ProfileTechnical, annotated[0].Profile)
}

func TestClassify_CodeBlockIsNeutral(t *testing.T) {
	elements := []document.Element{{Kind: document.KindCodeBlock, Content: "x := 1"}}

	annotated := document.Classify(elements, document.ProfileTechnical)

	require.Len(t, annotated, 1)
	assert.Equal(t, 0.0, annotated[0].Emphasis)
	assert.Positive(t, annotated[0].PauseAfterMS)
}

func TestClassify_HeadingLevelOneGetsStrongerEmphasisThanLevelThree(t *testing.T) {
	h1 := document.Classify([]document.Element{{Kind: document.KindHeading, Level: 1, Content: "Title"}}, document.ProfileNarrative)
	h3 := document.Classify([]document.Element{{Kind: document.KindHeading, Level: 3, Content: "Title"}}, document.ProfileNarrative)

	assert.Greater(t, h1[0].Emphasis, h3[0].Emphasis)
	assert.GreaterOrEqual(t, h1[0].PauseAfterMS, h3[0].PauseAfterMS)
}

func TestClassify_EmphasisStaysWithinUnitRange(t *testing.T) {
	elements := []document.Element{{Kind: document.KindBold, Content: "amazing! important! critical!"}}

	annotated := document.Classify(elements, document.ProfileMarketing)

	require.Len(t, annotated, 1)
	assert.LessOrEqual(t, annotated[0].Emphasis, 1.0)
	assert.GreaterOrEqual(t, annotated[0].Emphasis, 0.0)
}

func TestClassify_IsDeterministic(t *testing.T) {
	elements := document.Parse("# Title\n\nHello **world**, this is a test.")

	first := document.Classify(elements, document.ProfileAuto)
	second := document.Classify(elements, document.ProfileAuto)

	assert.Equal(t, first, second)
}
