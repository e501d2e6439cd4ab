package otel_test

import (
	"context"
	"testing"

	"github.com/Scouterna/j26-signupinfo/internal/platform/otel"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("SIGNUPINFO_OTEL_ENDPOINT", "")
	t.Setenv("SIGNUPINFO_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "signupinfo-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("SIGNUPINFO_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("SIGNUPINFO_OTEL_ENABLED", "FALSE")

	shutdown, err := otel.Setup(context.Background(), "signupinfo-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address: nothing is exported because no spans are recorded.
	t.Setenv("SIGNUPINFO_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("SIGNUPINFO_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "signupinfo-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
