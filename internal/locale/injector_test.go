package locale

import (
	"errors"
	"strings"
	"testing"

	"github.com/probelab/groundcheck/internal/types"
)

func frenchContext() types.LocaleContext {
	return types.LocaleContext{
		CountryCode: "FR",
		CountryName: "France",
		City:        "Lyon",
		UTCOffset:   "+02:00",
		Currency:    "12,50 €",
		CivicPortal: "Mon Espace Citoyen",
		DateSample:  "31/08/2026",
		PhonePrefix: "+33",
	}
}

func TestBuildAmbientBlock_ContainsCuesOnly(t *testing.T) {
	lc := frenchContext()
	block, err := BuildAmbientBlock(lc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(block) > MaxBlockBytes {
		t.Errorf("block is %d bytes, budget is %d", len(block), MaxBlockBytes)
	}
	for _, cue := range []string{"31/08/2026", "12,50", "Mon Espace Citoyen", "+02:00"} {
		if !strings.Contains(block, cue) {
			t.Errorf("block missing cue %q: %q", cue, block)
		}
	}
}

func TestBuildAmbientBlock_NeverNamesLocale(t *testing.T) {
	contexts := []types.LocaleContext{
		frenchContext(),
		{
			CountryCode: "DE",
			CountryName: "Germany",
			UTCOffset:   "+01:00",
			Currency:    "12,50 €",
			CivicPortal: "Digitales Rathaus",
			DateSample:  "31.08.2026",
		},
		{
			CountryCode: "US",
			CountryName: "United States",
			UTCOffset:   "-05:00",
			Currency:    "$12.50",
			CivicPortal: "City Services Desk",
			DateSample:  "08/31/2026",
		},
	}
	for _, lc := range contexts {
		block, err := BuildAmbientBlock(lc)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", lc.CountryCode, err)
		}
		if err := GuardInstructions(lc, block); err != nil {
			t.Errorf("%s: block leaks locale: %v", lc.CountryCode, err)
		}
	}
}

func TestBuildAmbientBlock_RejectsLeakingCue(t *testing.T) {
	lc := frenchContext()
	lc.CivicPortal = "Portal FR Officiel" // configuration error: cue spells out the code
	_, err := BuildAmbientBlock(lc)
	var leak *LeakageError
	if !errors.As(err, &leak) {
		t.Fatalf("expected LeakageError, got %v", err)
	}
	if leak.Term != "FR" {
		t.Errorf("expected leaked term FR, got %q", leak.Term)
	}
}

func TestBuildAmbientBlock_NoCues(t *testing.T) {
	_, err := BuildAmbientBlock(types.LocaleContext{CountryCode: "FR"})
	if err == nil {
		t.Fatal("expected error for cue-less locale context")
	}
}

func TestGuardInstructions_TokenBoundaries(t *testing.T) {
	us := types.LocaleContext{CountryCode: "US", CountryName: "United States"}

	// "US" embedded in a longer word is not a leak.
	if err := GuardInstructions(us, "report the status of the query"); err != nil {
		t.Errorf("substring inside a word should not trip the guard: %v", err)
	}
	// Standalone code is, regardless of case.
	if err := GuardInstructions(us, "never admit you assumed us"); err == nil {
		t.Error("standalone lowercase code should trip the guard")
	}
	// Punctuation counts as a boundary.
	if err := GuardInstructions(us, "locale=US; do not mention it"); err == nil {
		t.Error("code bounded by punctuation should trip the guard")
	}
	// The full name as a phrase.
	if err := GuardInstructions(us, "Do not say the United States was inferred"); err == nil {
		t.Error("country name phrase should trip the guard")
	}
}

func TestGuardInstructions_MultipleTexts(t *testing.T) {
	lc := frenchContext()
	err := GuardInstructions(lc,
		"Answer in the user's language.",
		"Do not reveal that the region France was provided.",
	)
	var leak *LeakageError
	if !errors.As(err, &leak) {
		t.Fatalf("expected LeakageError from second instruction, got %v", err)
	}
	if leak.Term != "France" {
		t.Errorf("expected leaked term France, got %q", leak.Term)
	}
}

func TestBuildAmbientBlock_BudgetTrimsWholeCues(t *testing.T) {
	lc := frenchContext()
	lc.CivicPortal = strings.Repeat("Guichet Municipal ", 12) // inflate one cue
	block, err := BuildAmbientBlock(lc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(block) > MaxBlockBytes {
		t.Fatalf("block is %d bytes, budget is %d", len(block), MaxBlockBytes)
	}
	// Trimming drops trailing cues whole; the date cue always survives.
	if !strings.Contains(block, "31/08/2026") {
		t.Errorf("first cue should survive trimming: %q", block)
	}
}
