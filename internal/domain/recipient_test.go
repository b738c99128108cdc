package domain

import "testing"

func TestCanTransitionConsent_AnyStateMayMoveToStop(t *testing.T) {
	for _, prior := range []ConsentState{ConsentOptIn, ConsentOptOut, ConsentStop} {
		if !CanTransitionConsent(prior, ConsentStop) {
			t.Errorf("expected %s -> STOP to be allowed", prior)
		}
	}
}

func TestCanTransitionConsent_OptInOnlyFromOptOut(t *testing.T) {
	if !CanTransitionConsent(ConsentOptOut, ConsentOptIn) {
		t.Error("expected OPT_OUT -> OPT_IN to be allowed")
	}
	if CanTransitionConsent(ConsentStop, ConsentOptIn) {
		t.Error("expected STOP -> OPT_IN to be rejected (sticky)")
	}
	if CanTransitionConsent(ConsentOptIn, ConsentOptIn) {
		t.Error("expected OPT_IN -> OPT_IN to be rejected (not already OPT_OUT)")
	}
}

func TestCanTransitionConsent_OptOutIsUnrestricted(t *testing.T) {
	for _, prior := range []ConsentState{ConsentOptIn, ConsentOptOut, ConsentStop} {
		if !CanTransitionConsent(prior, ConsentOptOut) {
			t.Errorf("expected %s -> OPT_OUT to be allowed", prior)
		}
	}
}
