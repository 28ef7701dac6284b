package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWith_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithDeviceID(ctx, "serial-001")
	ctx = WithUserID(ctx, "u1")

	With(ctx, &base).Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{
		`"trace_id":"trace-1"`,
		`"device_id":"serial-001"`,
		`"user_id":"u1"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %s: %s", want, out)
		}
	}
}

func TestWith_EmptyContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	With(context.Background(), &base).Info().Msg("hello")

	if out := buf.String(); strings.Contains(out, "trace_id") {
		t.Fatalf("unexpected field in %s", out)
	}
}

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"":        "***",
		"AB":      "***",
		"AB12CD":  "AB****",
		"user-42": "us****",
	}
	for in, want := range cases {
		if got := Redact(in); got != want {
			t.Errorf("Redact(%q) = %q, want %q", in, got, want)
		}
	}
}
