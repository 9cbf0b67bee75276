package document

import (
	"regexp"
	"strings"
)

// Emotion Classifier (SPEC_FULL §4.13): consumes the element sequence and
// produces Emotion-Annotated Elements. Base per-type tables and the
// content-rule adjustments are grounded on
// original_source/src/tts/speech_synthesis/emotion_detector.py's
// ContentEmotionDetector (base_emotions/timing_rules, _apply_content_rules,
// _apply_context_rules), reauthored around this system's four named
// profiles instead of that detector's five free-form emotion labels.

type timing struct {
	emphasis     float64
	pauseBefore  int
	pauseAfter   int
}

// profileOrder is the fixed tie-break order from SPEC_FULL §4.13.
var profileOrder = []EmotionProfile{ProfileTechnical, ProfileMarketing, ProfileNarrative, ProfileTutorial}

// baseTable holds the small fixed per-profile, per-kind numeric table
// SPEC_FULL §4.13 calls for: a floor the content/context rules then
// adjust upward, never downward below it.
var baseTable = map[EmotionProfile]map[ElementKind]timing{
	ProfileTechnical: {
		KindHeading:   {emphasis: 0.5, pauseBefore: 100, pauseAfter: 600},
		KindCodeBlock: {emphasis: 0, pauseBefore: 400, pauseAfter: 800},
		KindCode:      {emphasis: 0, pauseBefore: 50, pauseAfter: 100},
		KindListItem:  {emphasis: 0.3, pauseBefore: 150, pauseAfter: 250},
		KindBold:      {emphasis: 0.4, pauseBefore: 0, pauseAfter: 100},
		KindItalic:    {emphasis: 0.3, pauseBefore: 0, pauseAfter: 50},
		KindLink:      {emphasis: 0.3, pauseBefore: 0, pauseAfter: 150},
		KindParagraph: {emphasis: 0.3, pauseBefore: 0, pauseAfter: 0},
		KindBreak:     {emphasis: 0, pauseBefore: 200, pauseAfter: 200},
	},
	ProfileMarketing: {
		KindHeading:   {emphasis: 0.9, pauseBefore: 100, pauseAfter: 700},
		KindCodeBlock: {emphasis: 0.1, pauseBefore: 300, pauseAfter: 600},
		KindCode:      {emphasis: 0.1, pauseBefore: 50, pauseAfter: 100},
		KindListItem:  {emphasis: 0.6, pauseBefore: 100, pauseAfter: 200},
		KindBold:      {emphasis: 0.8, pauseBefore: 0, pauseAfter: 150},
		KindItalic:    {emphasis: 0.6, pauseBefore: 0, pauseAfter: 100},
		KindLink:      {emphasis: 0.6, pauseBefore: 0, pauseAfter: 200},
		KindParagraph: {emphasis: 0.6, pauseBefore: 0, pauseAfter: 0},
		KindBreak:     {emphasis: 0, pauseBefore: 150, pauseAfter: 150},
	},
	ProfileNarrative: {
		KindHeading:   {emphasis: 0.7, pauseBefore: 200, pauseAfter: 900},
		KindCodeBlock: {emphasis: 0, pauseBefore: 400, pauseAfter: 800},
		KindCode:      {emphasis: 0, pauseBefore: 50, pauseAfter: 100},
		KindListItem:  {emphasis: 0.4, pauseBefore: 150, pauseAfter: 300},
		KindBold:      {emphasis: 0.5, pauseBefore: 0, pauseAfter: 150},
		KindItalic:    {emphasis: 0.5, pauseBefore: 0, pauseAfter: 150},
		KindLink:      {emphasis: 0.4, pauseBefore: 0, pauseAfter: 200},
		KindParagraph: {emphasis: 0.4, pauseBefore: 0, pauseAfter: 0},
		KindBreak:     {emphasis: 0, pauseBefore: 300, pauseAfter: 300},
	},
	ProfileTutorial: {
		KindHeading:   {emphasis: 0.6, pauseBefore: 100, pauseAfter: 700},
		KindCodeBlock: {emphasis: 0, pauseBefore: 400, pauseAfter: 900},
		KindCode:      {emphasis: 0, pauseBefore: 50, pauseAfter: 100},
		KindListItem:  {emphasis: 0.5, pauseBefore: 200, pauseAfter: 400},
		KindBold:      {emphasis: 0.5, pauseBefore: 0, pauseAfter: 150},
		KindItalic:    {emphasis: 0.4, pauseBefore: 0, pauseAfter: 100},
		KindLink:      {emphasis: 0.4, pauseBefore: 0, pauseAfter: 200},
		KindParagraph: {emphasis: 0.4, pauseBefore: 0, pauseAfter: 0},
		KindBreak:     {emphasis: 0, pauseBefore: 250, pauseAfter: 250},
	},
}

var (
	technicalTerms     = []string{"api", "function", "class", "method", "variable", "algorithm", "database", "server", "compile", "interface"}
	superlatives       = []string{"best", "amazing", "revolutionary", "ultimate", "incredible", "unbeatable"}
	callToAction       = []string{"buy now", "sign up", "click here", "limited time", "act now", "don't miss"}
	dialogueMarker     = regexp.MustCompile(`["“”]`)
	pastTenseVerb      = regexp.MustCompile(`(?i)\b\w+ed\b`)
	numberedListItem   = regexp.MustCompile(`^\d+[.)]`)
	stepMarker         = regexp.MustCompile(`(?i)\bstep\s*\d*\b`)
	imperativeVerbs    = []string{"open", "click", "run", "install", "type", "create", "select", "enter", "navigate", "configure"}
)

// Classify implements the Emotion Classifier (SPEC_FULL §4.13). When
// profile is ProfileAuto, it is resolved once per document via the fixed
// scoring function before any per-element annotation runs.
func Classify(elements []Element, profile EmotionProfile) []AnnotatedElement {
	resolved := profile
	if resolved == ProfileAuto {
		resolved = classifyDocument(elements)
	}

	table := baseTable[resolved]

	annotated := make([]AnnotatedElement, len(elements))

	for i, el := range elements {
		base, ok := table[el.Kind]
		if !ok {
			base = table[KindParagraph]
		}

		t := base
		applyContentRules(el, &t)
		applyContextRules(elements, i, &t)

		annotated[i] = AnnotatedElement{
			Element:       el,
			Profile:       resolved,
			Emphasis:      clampUnit(t.emphasis),
			PauseBeforeMS: t.pauseBefore,
			PauseAfterMS:  t.pauseAfter,
		}
	}

	return annotated
}

// classifyDocument implements the fixed scoring function: highest score
// wins, ties resolved by profileOrder.
func classifyDocument(elements []Element) EmotionProfile {
	scores := map[EmotionProfile]int{}

	var allText strings.Builder

	for _, el := range elements {
		lower := strings.ToLower(el.Content)
		allText.WriteString(lower)
		allText.WriteByte(' ')

		switch el.Kind {
		case KindCodeBlock:
			scores[ProfileTechnical] += 3
		case KindCode:
			scores[ProfileTechnical]++
		case KindHeading:
			if strings.Contains(lower, "chapter") {
				scores[ProfileNarrative] += 2
			}
		case KindListItem:
			if numberedListItem.MatchString(strings.TrimSpace(el.Content)) {
				scores[ProfileTutorial] += 2
			}
		}

		scores[ProfileTechnical] += countHits(lower, technicalTerms)
		scores[ProfileMarketing] += countHits(lower, superlatives) + countHits(lower, callToAction)
		scores[ProfileTutorial] += countHits(lower, imperativeVerbs)

		if stepMarker.MatchString(lower) {
			scores[ProfileTutorial] += 2
		}

		if dialogueMarker.MatchString(el.Content) {
			scores[ProfileNarrative]++
		}

		scores[ProfileNarrative] += len(pastTenseVerb.FindAllString(lower, -1))
	}

	text := allText.String()
	if n := strings.Count(text, "!"); n > 0 && len(text) > 0 {
		density := float64(n) / float64(len(text))
		if density > 0.002 {
			scores[ProfileMarketing] += 3
		}
	}

	best := ProfileTechnical
	bestScore := -1

	for _, p := range profileOrder {
		if scores[p] > bestScore {
			bestScore = scores[p]
			best = p
		}
	}

	return best
}

func countHits(lower string, lexicon []string) int {
	count := 0

	for _, term := range lexicon {
		count += strings.Count(lower, term)
	}

	return count
}

// applyContentRules mirrors emotion_detector.py's _apply_content_rules:
// exclamation/urgency words raise emphasis, "important"/"warning" style
// words raise emphasis further, technical-term-heavy prose stays flat,
// and a trailing question mark lengthens the pause after.
func applyContentRules(el Element, t *timing) {
	lower := strings.ToLower(el.Content)

	if strings.Contains(lower, "!") || containsAny(lower, "amazing", "awesome", "great", "excellent") {
		t.emphasis = raise(t.emphasis, 0.2)
	}

	if containsAny(lower, "important", "note", "warning", "critical") {
		t.emphasis = raise(t.emphasis, 0.3)
	}

	if containsAny(lower, technicalTerms...) && t.emphasis > 0.5 {
		t.emphasis = 0.4
	}

	if strings.HasSuffix(strings.TrimSpace(el.Content), "?") {
		t.pauseAfter = maxInt(t.pauseAfter, 300)
	}
}

// applyContextRules mirrors emotion_detector.py's _apply_context_rules:
// heading level scales intensity/pause, and adjacency to a heading
// shortens the pause before (after a heading) or lengthens the pause
// after (before a heading).
func applyContextRules(elements []Element, i int, t *timing) {
	el := elements[i]

	if el.Kind == KindHeading {
		switch {
		case el.Level == 1:
			t.emphasis = 0.8
			t.pauseAfter = maxInt(t.pauseAfter, 1000)
		case el.Level == 2:
			t.emphasis = 0.6
			t.pauseAfter = maxInt(t.pauseAfter, 800)
		default:
			t.emphasis = 0.5
			t.pauseAfter = maxInt(t.pauseAfter, 600)
		}
	}

	if i > 0 && elements[i-1].Kind == KindHeading {
		t.pauseBefore = maxInt(0, t.pauseBefore-200)
	}

	if i < len(elements)-1 && elements[i+1].Kind == KindHeading {
		t.pauseAfter = maxInt(t.pauseAfter, 300)
	}
}

func containsAny(s string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}

	return false
}

func raise(v, delta float64) float64 {
	return clampUnit(v + delta)
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}
