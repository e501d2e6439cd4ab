package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeNotFound, "not found")
	err := fmt.Errorf("lookup group: %w", WithMetadata(CodeNotFound, "group missing", map[string]string{"group_id": "12"}))

	if !stderrors.Is(err, sentinel) {
		t.Fatal("expected wrapped not-found error to match sentinel")
	}
	if stderrors.Is(err, New(CodeUnavailable, "unavailable")) {
		t.Fatal("expected code mismatch to fail")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(CodeUpstreamFetch, "refresh projects", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if got, want := err.Error(), "refresh projects: connection refused"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: CodeUnknown},
		{name: "plain", err: stderrors.New("boom"), want: CodeUnknown},
		{name: "direct", err: New(CodeUnavailable, "x"), want: CodeUnavailable},
		{name: "wrapped", err: fmt.Errorf("ctx: %w", New(CodeDataIntegrity, "x")), want: CodeDataIntegrity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Fatalf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCodeExpected(t *testing.T) {
	if !CodeNotFound.Expected() || !CodeTooManyMatches.Expected() {
		t.Fatal("expected lookup outcomes to be expected")
	}
	if CodeUpstreamFetch.Expected() || CodeUnavailable.Expected() {
		t.Fatal("expected failures to be unexpected")
	}
}
