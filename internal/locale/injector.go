// Package locale builds the ambient context block that precedes the user
// prompt. The block carries style cues (date format, currency, civic-portal
// label) from which a model can infer a locale, and is guaranteed never to
// contain the locale code or name itself: the model must infer, not be told.
package locale

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/probelab/groundcheck/internal/types"
)

// MaxBlockBytes bounds the ambient block. Overflow drops whole trailing cue
// sentences, never cuts mid-sentence.
const MaxBlockBytes = 350

// LeakageError reports a locale code or name appearing as a literal token in
// text that will be shown to the model.
type LeakageError struct {
	Term string
	Text string
}

func (e *LeakageError) Error() string {
	return fmt.Sprintf("locale term %q leaks into model-visible text: %.120q", e.Term, e.Text)
}

// BuildAmbientBlock renders the cue sentences for lc. The returned block is
// intended to be sent as its own message preceding the user prompt, so the
// model cannot attribute the cues to the question being asked. The block is
// validated against the leakage guard before being returned; a cue that
// spells out the locale code or name rejects the whole configuration.
func BuildAmbientBlock(lc types.LocaleContext) (string, error) {
	var cues []string
	if lc.DateSample != "" {
		cues = append(cues, fmt.Sprintf("Today's date is written %s.", lc.DateSample))
	}
	if lc.Currency != "" {
		cues = append(cues, fmt.Sprintf("Everyday prices look like %s.", lc.Currency))
	}
	if lc.CivicPortal != "" {
		cues = append(cues, fmt.Sprintf("For official matters people use the %q portal.", lc.CivicPortal))
	}
	if lc.UTCOffset != "" {
		cues = append(cues, fmt.Sprintf("Local clocks run at UTC%s.", lc.UTCOffset))
	}
	if lc.PhonePrefix != "" {
		cues = append(cues, fmt.Sprintf("Phone numbers here start with %s.", lc.PhonePrefix))
	}
	if len(cues) == 0 {
		return "", fmt.Errorf("locale context for %s has no usable cues", lc.CountryCode)
	}

	block := strings.Join(cues, " ")
	for len(block) > MaxBlockBytes && len(cues) > 1 {
		cues = cues[:len(cues)-1]
		block = strings.Join(cues, " ")
	}
	if len(block) > MaxBlockBytes {
		return "", fmt.Errorf("ambient block exceeds %d bytes with a single cue", MaxBlockBytes)
	}

	if err := GuardInstructions(lc, block); err != nil {
		return "", err
	}
	return block, nil
}

// GuardInstructions checks that none of the given model-visible texts contain
// the locale code or name as a standalone token. This covers the ambient
// block itself and any system instructions configured alongside it: a
// disallow-list instruction that spells out "never say you assumed FR" would
// teach the model the very mapping it was never given.
func GuardInstructions(lc types.LocaleContext, texts ...string) error {
	var terms []string
	if lc.CountryCode != "" {
		terms = append(terms, lc.CountryCode)
	}
	if lc.CountryName != "" {
		terms = append(terms, lc.CountryName)
	}
	for _, text := range texts {
		for _, term := range terms {
			if containsToken(text, term) {
				return &LeakageError{Term: term, Text: text}
			}
		}
	}
	return nil
}

// containsToken reports whether term occurs in text bounded by non-letters on
// both sides, case-insensitively. "US" inside "status" does not match;
// multi-word names match as a whole phrase.
func containsToken(text, term string) bool {
	lower := strings.ToLower(text)
	needle := strings.ToLower(term)
	for start := 0; ; start++ {
		i := strings.Index(lower[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)
		before, _ := utf8.DecodeLastRuneInString(lower[:i])
		after, _ := utf8.DecodeRuneInString(lower[end:])
		if (i == 0 || !unicode.IsLetter(before)) && (end == len(lower) || !unicode.IsLetter(after)) {
			return true
		}
		start = i
	}
}
