// Package mail holds the outbound mail senders.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"uniauth/internal/observability/middleware"
)

// LogSender writes every message to the log instead of delivering it. The
// envelope is logged at info; the body carries live tokens and is only logged
// at debug.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, to, subject, body, from string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = middleware.Logger(ctx, logger)
	logger.Info("mail", "to", to, "from", from, "subject", subject)
	logger.Debug("mail body", "to", to, "body", body)
	return nil
}

const VerificationSubject = "Verify your email address"

// VerificationBody renders the verification message. The link carries the
// email id and token as query parameters when baseURL is set; otherwise the
// raw values are listed.
func VerificationBody(baseURL, emailID, token string) string {
	var b strings.Builder
	b.WriteString("Confirm that this address belongs to you.\n\n")
	if baseURL != "" {
		q := url.Values{}
		q.Set("email", emailID)
		q.Set("token", token)
		fmt.Fprintf(&b, "%s?%s\n", strings.TrimRight(baseURL, "?"), q.Encode())
	} else {
		fmt.Fprintf(&b, "email: %s\ntoken: %s\n", emailID, token)
	}
	b.WriteString("\nIf you did not ask for this, ignore this message.\n")
	return b.String()
}
