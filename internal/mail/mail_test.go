package mail

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLogSenderLogsMessage(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	if err := s.Send(context.Background(), "new@ex.com", "hi", "body", "uniauth@example.com"); err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"to":"new@ex.com"`, `"subject":"hi"`, `"from":"uniauth@example.com"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestLogSenderKeepsBodyAtDebug(t *testing.T) {
	body := VerificationBody("", "e1", "secret-token")

	var info bytes.Buffer
	s := LogSender{Logger: slog.New(slog.NewJSONHandler(&info, nil))}
	if err := s.Send(context.Background(), "new@ex.com", VerificationSubject, body, "uniauth@example.com"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if strings.Contains(info.String(), "secret-token") {
		t.Fatalf("expected token kept out of info logs, got %s", info.String())
	}

	var debug bytes.Buffer
	s = LogSender{Logger: slog.New(slog.NewJSONHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	if err := s.Send(context.Background(), "new@ex.com", VerificationSubject, body, "uniauth@example.com"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(debug.String(), "secret-token") {
		t.Fatalf("expected body in debug logs, got %s", debug.String())
	}
}

func TestVerificationBody(t *testing.T) {
	body := VerificationBody("https://example.com/verify", "e1", "tok en")
	if !strings.Contains(body, "https://example.com/verify?email=e1&token=tok+en") {
		t.Fatalf("expected link in body, got %q", body)
	}
	body = VerificationBody("", "e1", "tok")
	if !strings.Contains(body, "token: tok") {
		t.Fatalf("expected raw token in body, got %q", body)
	}
}
