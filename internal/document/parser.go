package document

import (
	"regexp"
	"sort"
	"strings"
)

// Semantic Parser (SPEC_FULL §4.12): line-oriented parse into a finite,
// non-restartable ordered sequence of Semantic Elements. Grounded on
// original_source/tts_cli/document_processing/markdown_parser.py's
// MarkdownParser, reauthored as a single pure function rather than a
// stateful object, since Go has no need for the Python class's compiled
// regex cache to live on an instance.

var (
	headingPattern  = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	listItemPattern = regexp.MustCompile(`^\s*[-*+]\s+(.+)$`)
	breakPattern    = regexp.MustCompile(`^(-{3,}|\*{3,}|_{3,})$`)
	fenceMarker     = "```"

	boldPattern = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern = regexp.MustCompile(`\*([^*]+)\*`)
	codePattern   = regexp.MustCompile("`([^`]+)`")
	linkPattern   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// Parse implements the Semantic Parser's single entry point. Every byte
// of input contributes to exactly one element or is discarded whitespace;
// output order matches input order; reparsing the same input yields an
// identical sequence (SPEC_FULL §4.12 invariants — Parse has no internal
// state that could make two calls on the same input diverge).
func Parse(markdown string) []Element {
	normalised := strings.ReplaceAll(markdown, "\r\n", "\n")
	lines := strings.Split(normalised, "\n")

	elements := make([]Element, 0, len(lines))

	var (
		inFence    bool
		fenceLines []string
	)

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inFence {
			if trimmed == fenceMarker {
				elements = append(elements, Element{
					Kind:    KindCodeBlock,
					Content: strings.Join(fenceLines, "\n"),
				})
				inFence = false
				fenceLines = nil
			} else {
				fenceLines = append(fenceLines, line)
			}

			continue
		}

		if trimmed == fenceMarker {
			inFence = true

			continue
		}

		if trimmed == "" {
			continue
		}

		if breakPattern.MatchString(trimmed) {
			elements = append(elements, Element{Kind: KindBreak})

			continue
		}

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			elements = append(elements, Element{
				Kind:    KindHeading,
				Level:   len(m[1]),
				Content: flatten(m[2]),
			})

			continue
		}

		if m := listItemPattern.FindStringSubmatch(line); m != nil {
			elements = append(elements, Element{
				Kind:    KindListItem,
				Content: flatten(m[1]),
			})

			continue
		}

		elements = append(elements, parseInline(line)...)
	}

	// An input that ends mid-fence (no closing ```) has no home for its
	// accumulated lines per the line-oriented grammar; surfacing it as a
	// code block (rather than silently dropping it) keeps every
	// non-whitespace byte attributed to an element.
	if inFence && len(fenceLines) > 0 {
		elements = append(elements, Element{Kind: KindCodeBlock, Content: strings.Join(fenceLines, "\n")})
	}

	return elements
}

type marker struct {
	kind   ElementKind
	start  int
	end    int
	text   string
	target string
}

// parseInline parses bold/italic/code/link formatting within a single
// line of text, grounded on markdown_parser.py's _parse_inline_formatting:
// bold is found first, then italic markers not nested inside a bold span,
// then code spans, then link spans not nested inside any prior marker.
// Plain text runs between markers become Paragraph elements.
func parseInline(text string) []Element {
	markers := collectMarkers(text)

	sort.Slice(markers, func(i, j int) bool { return markers[i].start < markers[j].start })

	elements := make([]Element, 0, len(markers)*2+1)
	pos := 0

	for _, m := range markers {
		if m.start < pos {
			continue // overlaps a marker already emitted
		}

		if plain := strings.TrimSpace(text[pos:m.start]); plain != "" {
			elements = append(elements, Element{Kind: KindParagraph, Content: plain})
		}

		elements = append(elements, Element{Kind: m.kind, Content: m.text, Target: m.target})
		pos = m.end
	}

	if plain := strings.TrimSpace(text[pos:]); plain != "" {
		elements = append(elements, Element{Kind: KindParagraph, Content: plain})
	}

	if len(elements) == 0 && strings.TrimSpace(text) != "" {
		elements = append(elements, Element{Kind: KindParagraph, Content: strings.TrimSpace(text)})
	}

	return elements
}

func collectMarkers(text string) []marker {
	var markers []marker

	for _, m := range boldPattern.FindAllStringSubmatchIndex(text, -1) {
		markers = append(markers, marker{kind: KindBold, start: m[0], end: m[1], text: text[m[2]:m[3]]})
	}

	for _, m := range italicPattern.FindAllStringSubmatchIndex(text, -1) {
		if insideAny(markers, m[0], m[1]) {
			continue
		}

		markers = append(markers, marker{kind: KindItalic, start: m[0], end: m[1], text: text[m[2]:m[3]]})
	}

	for _, m := range codePattern.FindAllStringSubmatchIndex(text, -1) {
		if insideAny(markers, m[0], m[1]) {
			continue
		}

		markers = append(markers, marker{kind: KindCode, start: m[0], end: m[1], text: text[m[2]:m[3]]})
	}

	for _, m := range linkPattern.FindAllStringSubmatchIndex(text, -1) {
		if insideAny(markers, m[0], m[1]) {
			continue
		}

		markers = append(markers, marker{
			kind:   KindLink,
			start:  m[0],
			end:    m[1],
			text:   text[m[2]:m[3]],
			target: text[m[4]:m[5]],
		})
	}

	return markers
}

func insideAny(markers []marker, start, end int) bool {
	for _, m := range markers {
		if m.start <= start && end <= m.end {
			return true
		}
	}

	return false
}

// flatten extracts the plain text content of a heading or list-item body
// by running the inline parser and joining each resulting element's
// content with a space, mirroring markdown_parser.py's
// _extract_text_content.
func flatten(text string) string {
	elements := parseInline(text)

	parts := make([]string, 0, len(elements))
	for _, e := range elements {
		parts = append(parts, e.Content)
	}

	return strings.Join(parts, " ")
}
