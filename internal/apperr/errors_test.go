package apperr

import (
	"errors"
	"testing"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrUpstream, "suno submit", "track 2", cause)

	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if got := err.Error(); got != "upstream error: suno submit: track 2: connection reset" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := Wrap(nil, "", "", nil)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected default marker ErrUpstream, got %v", err)
	}
	if err.Error() != "upstream error: pipeline failure" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Validation("start", "idea missing"), "validation"},
		{NotFound("load", "project"), "not_found"},
		{Conflict("generate", "already submitted"), "conflict"},
		{Wrap(ErrUnauthorized, "callback", "bad secret", nil), "unauthorized"},
		{Wrap(ErrUpstream, "concept", "", Wrap(ErrParse, "structured", "", nil)), "parse"},
		{Upstream("narrative", errors.New("boom")), "upstream"},
		{errors.New("disk full"), "internal"},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
