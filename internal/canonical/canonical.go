// Package canonical refines a GroundingResult in place: strips decorative
// formatting fences around structured payloads, normalizes and deduplicates
// citations, and transliterates text for sinks that mishandle non-ASCII.
// The whole pass is idempotent; feeding an already-canonical result through
// again yields an identical result.
package canonical

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/probelab/groundcheck/internal/types"
)

// Canonicalizer holds the sink-dependent knobs.
type Canonicalizer struct {
	// ASCIISink turns on transliteration for downstream consumers known to
	// mishandle characters outside ASCII.
	ASCIISink bool
}

// Canonicalize refines res in place. When schema is non-nil the text must
// carry a conforming structured payload, with or without a decorative fence
// around it; nonconformance is a ShapeViolation.
func (c *Canonicalizer) Canonicalize(res *types.GroundingResult, schema map[string]any) error {
	if schema != nil {
		payload, err := extractStructured(res.Text)
		if err != nil {
			return err
		}
		if err := validateSchema(payload, schema); err != nil {
			return err
		}
		res.Text = payload
	}

	citations, err := normalizeCitations(res.Citations)
	if err != nil {
		return err
	}
	res.Citations = citations

	if c.ASCIISink {
		res.Text = Transliterate(res.Text)
		for i := range res.Citations {
			res.Citations[i].Title = Transliterate(res.Citations[i].Title)
		}
	}
	return nil
}

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\r?\n?(.*?)```")

// extractStructured locates the structured payload in text: content of the
// first fenced block if one exists, otherwise the first balanced JSON object
// or array, otherwise the whole text. The result must parse as JSON.
func extractStructured(text string) (string, error) {
	candidate := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	} else if span := balancedSpan(candidate); span != "" {
		candidate = span
	}

	var probe any
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return "", &types.ShapeViolation{
			Reason:   "structured payload requested but response text is not parseable",
			Fragment: text,
		}
	}
	return candidate, nil
}

// balancedSpan returns the first balanced {...} or [...] span, tracking
// string literals so braces inside strings do not count.
func balancedSpan(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	opener := text[start]
	closer := byte('}')
	if opener == '[' {
		closer = ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func validateSchema(payload string, schema map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewStringLoader(payload),
	)
	if err != nil {
		return &types.ShapeViolation{Reason: fmt.Sprintf("schema validation failed: %v", err), Fragment: payload}
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return &types.ShapeViolation{
			Reason:   "payload does not conform to response schema: " + strings.Join(errs, "; "),
			Fragment: payload,
		}
	}
	return nil
}

// Tracking parameters stripped during URL normalization.
var trackingParams = map[string]bool{
	"gclid":  true,
	"fbclid": true,
	"ref":    true,
}

func isTrackingParam(name string) bool {
	return trackingParams[name] || name == "utm" || strings.HasPrefix(name, "utm_")
}

// normalizeCitations rewrites every citation URL to canonical form and drops
// duplicates, keeping first-occurrence order and the first-seen title.
func normalizeCitations(citations []types.Citation) ([]types.Citation, error) {
	if citations == nil {
		return nil, nil
	}
	seen := make(map[string]bool, len(citations))
	out := make([]types.Citation, 0, len(citations))
	for _, cit := range citations {
		normalized, err := NormalizeURL(cit.URL)
		if err != nil {
			return nil, err
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, types.Citation{URL: normalized, Title: cit.Title})
	}
	return out, nil
}

// NormalizeURL canonicalizes a citation URL: lowercase scheme and host,
// default port and fragment stripped, tracking parameters removed, trailing
// slash dropped on non-root paths. A citation that is not a well-formed
// absolute http(s) URL is a ShapeViolation.
func NormalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", &types.ShapeViolation{Reason: "citation with empty url"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &types.ShapeViolation{Reason: "citation url does not parse", Fragment: raw}
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", &types.ShapeViolation{Reason: "citation url is not absolute http(s)", Fragment: raw}
	}
	u.Scheme = scheme
	host := strings.ToLower(u.Host)
	if scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	} else {
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	u.Fragment = ""

	q := u.Query()
	for name := range q {
		if isTrackingParam(name) {
			q.Del(name)
		}
	}
	u.RawQuery = q.Encode()

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}

// Non-decomposing letters the NFD pass cannot reduce.
var transliterations = strings.NewReplacer(
	"ß", "ss", "ẞ", "SS",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"đ", "d", "Đ", "D",
	"þ", "th", "Þ", "Th",
	"ð", "d", "Ð", "D",
	"ł", "l", "Ł", "L",
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Transliterate reduces diacritics and a narrow set of special letters to
// their ASCII approximations. Characters with no mapping pass through.
func Transliterate(s string) string {
	replaced := transliterations.Replace(s)
	out, _, err := transform.String(stripMarks, replaced)
	if err != nil {
		return replaced
	}
	return out
}
