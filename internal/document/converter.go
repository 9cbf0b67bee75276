package document

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Format is the detected input shape (SPEC_FULL §4.11).
type Format int

const (
	FormatMarkdown Format = iota
	FormatHTML
	FormatJSON
)

const htmlSniffWindow = 512

// htmlTagPattern matches a recognised HTML tag or doctype within the
// sniff window, grounded on universal_converter.py's _detect_format regex.
var htmlTagPattern = regexp.MustCompile(`(?i)<!doctype html|<(html|head|body|div|p|h[1-6])[\s>]`)

// DetectFormat implements the pure, total detection algorithm from
// SPEC_FULL §4.11: JSON if the content parses as JSON and begins with `{`
// or `[`; else HTML if a recognised tag appears in the first 512 bytes;
// else Markdown/plain.
func DetectFormat(content string) Format {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return FormatJSON
		}
	}

	window := content
	if len(window) > htmlSniffWindow {
		window = window[:htmlSniffWindow]
	}

	if htmlTagPattern.MatchString(window) {
		return FormatHTML
	}

	return FormatMarkdown
}

// htmlRewrites is the fixed pattern-rewrite table from SPEC_FULL §4.11,
// grounded almost verbatim on universal_converter.py's _html_to_markdown,
// reauthored as compiled Go regexps. Order matters: headings/emphasis/
// links/lists/code must run before the catch-all tag-stripping pass.
var htmlRewrites = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`), "# $1"},
	{regexp.MustCompile(`(?is)<h2[^>]*>(.*?)</h2>`), "## $1"},
	{regexp.MustCompile(`(?is)<h3[^>]*>(.*?)</h3>`), "### $1"},
	{regexp.MustCompile(`(?is)<h4[^>]*>(.*?)</h4>`), "#### $1"},
	{regexp.MustCompile(`(?is)<h5[^>]*>(.*?)</h5>`), "##### $1"},
	{regexp.MustCompile(`(?is)<h6[^>]*>(.*?)</h6>`), "###### $1"},
	{regexp.MustCompile(`(?is)<(strong|b)[^>]*>(.*?)</(strong|b)>`), "**$2**"},
	{regexp.MustCompile(`(?is)<(em|i)[^>]*>(.*?)</(em|i)>`), "*$2*"},
	{regexp.MustCompile(`(?is)<a[^>]*href=["']([^"']*)["'][^>]*>(.*?)</a>`), "[$2]($1)"},
	{regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`), "- $1"},
	{regexp.MustCompile(`(?is)<code[^>]*>(.*?)</code>`), "`$1`"},
	{regexp.MustCompile(`(?is)<pre[^>]*>(.*?)</pre>`), "```\n$1\n```"},
	{regexp.MustCompile(`(?i)<p[^>]*>`), "\n"},
	{regexp.MustCompile(`(?i)</p>`), "\n"},
}

// htmlTagStripPattern removes every remaining tag after the rewrite table
// has run.
var htmlTagStripPattern = regexp.MustCompile(`<[^>]+>`)

// runWhitespacePattern collapses three-or-more newlines to exactly two,
// per SPEC_FULL §4.11.
var runWhitespacePattern = regexp.MustCompile(`\n\s*\n\s*\n+`)

// htmlToMarkdown applies the fixed regex rewrite table. Deliberately
// regex-based, not a full HTML parse: the domain is document-shaped
// content (headings, emphasis, links, lists, code, paragraphs), not
// arbitrary markup, and a full parser would add a dependency for
// structure this system never needs to round-trip losslessly.
func htmlToMarkdown(html string) string {
	out := html

	for _, rewrite := range htmlRewrites {
		out = rewrite.pattern.ReplaceAllString(out, rewrite.replacement)
	}

	out = htmlTagStripPattern.ReplaceAllString(out, " ")
	out = runWhitespacePattern.ReplaceAllString(out, "\n\n")

	return strings.TrimSpace(out)
}

// orderedPair is one key/value pair decoded from a JSON object in source
// order, used instead of map[string]any so jsonToMarkdown can preserve
// insertion order per SPEC_FULL §4.11.
type orderedPair struct {
	key   string
	value any
}

// jsonToMarkdown converts a JSON document to Markdown: top-level object
// keys become `## Key` headings with value bodies; nested objects/lists
// become indented bullet lists; scalar leaves become `**key**: value`.
// Grounded on universal_converter.py's _format_json_data. Requires a
// streaming token decode (not json.Unmarshal into map[string]any) because
// Go maps have no iteration order and the spec requires the source's
// insertion order to be preserved.
func jsonToMarkdown(raw string) (string, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	value, err := decodeOrdered(dec)
	if err != nil {
		return "", err
	}

	return formatJSONValue(value, 0), nil
}

// decodeOrdered decodes one JSON value from dec, representing objects as
// []orderedPair (preserving key order) and arrays as []any, so downstream
// formatting never loses source ordering.
func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeOrderedObject(dec)
		case '[':
			return decodeOrderedArray(dec)
		default:
			return nil, nil
		}
	default:
		return tok, nil
	}
}

func decodeOrderedObject(dec *json.Decoder) ([]orderedPair, error) {
	pairs := make([]orderedPair, 0)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		key, _ := keyTok.(string)

		value, err := decodeOrdered(dec)
		if err != nil {
			return nil, err
		}

		pairs = append(pairs, orderedPair{key: key, value: value})
	}

	if _, err := dec.Token(); err != nil { // consume closing '}'
		return nil, err
	}

	return pairs, nil
}

func decodeOrderedArray(dec *json.Decoder) ([]any, error) {
	items := make([]any, 0)

	for dec.More() {
		value, err := decodeOrdered(dec)
		if err != nil {
			return nil, err
		}

		items = append(items, value)
	}

	if _, err := dec.Token(); err != nil { // consume closing ']'
		return nil, err
	}

	return items, nil
}

func isContainer(v any) bool {
	switch v.(type) {
	case []orderedPair, []any:
		return true
	default:
		return false
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}

	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}

	return strings.Join(fields, " ")
}

func formatJSONValue(v any, level int) string {
	switch typed := v.(type) {
	case []orderedPair:
		return formatObject(typed, level)
	case []any:
		return formatArray(typed, level)
	default:
		return scalarString(v)
	}
}

func formatObject(pairs []orderedPair, level int) string {
	lines := make([]string, 0, len(pairs))
	indent := strings.Repeat("  ", level)

	for _, pair := range pairs {
		if isContainer(pair.value) {
			if level == 0 {
				lines = append(lines, "## "+titleCase(pair.key))
			} else {
				lines = append(lines, indent+"- **"+pair.key+"**:")
			}

			lines = append(lines, formatJSONValue(pair.value, level+1))
		} else {
			if level == 0 {
				lines = append(lines, "**"+titleCase(pair.key)+"**: "+scalarString(pair.value))
			} else {
				lines = append(lines, indent+"- **"+pair.key+"**: "+scalarString(pair.value))
			}
		}
	}

	return strings.Join(lines, "\n")
}

func formatArray(items []any, level int) string {
	lines := make([]string, 0, len(items))
	indent := strings.Repeat("  ", level)

	for _, item := range items {
		if isContainer(item) {
			lines = append(lines, formatJSONValue(item, level))
		} else {
			lines = append(lines, indent+"- "+scalarString(item))
		}
	}

	return strings.Join(lines, "\n")
}

func scalarString(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		if typed {
			return "true"
		}

		return "false"
	case nil:
		return "null"
	default:
		return ""
	}
}

// ToMarkdown converts content to Markdown per SPEC_FULL §4.11. Markdown
// and plain text pass through unchanged.
func ToMarkdown(content string) (string, error) {
	switch DetectFormat(content) {
	case FormatJSON:
		return jsonToMarkdown(content)
	case FormatHTML:
		return htmlToMarkdown(content), nil
	default:
		return content, nil
	}
}
