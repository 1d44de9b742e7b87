package telegram

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"herald/internal/channel"
	logx "herald/pkg/logx"
)

func TestClassifyFlood(t *testing.T) {
	err := classify(tele.FloodError{
		RetryAfter: 17,
	})
	retryAfter, ok := channel.IsRateLimit(err)
	if !ok {
		t.Fatalf("expected rate limit classification, got %v", err)
	}
	if retryAfter != 17*time.Second {
		t.Fatalf("expected 17s retry-after, got %v", retryAfter)
	}
}

func TestClassifyServerError(t *testing.T) {
	err := classify(&tele.Error{Code: 502, Description: "Bad Gateway"})
	var te *channel.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("5xx must be transient, got %v", err)
	}
}

func TestClassifyClientError(t *testing.T) {
	err := classify(&tele.Error{Code: 403, Description: "Forbidden: bot was blocked"})
	if !channel.IsPermanent(err) {
		t.Fatalf("4xx must be permanent, got %v", err)
	}
	if _, ok := channel.IsRateLimit(err); ok {
		t.Fatalf("4xx must not classify as rate limit")
	}
}

func TestClassifyTransport(t *testing.T) {
	err := classify(errors.New("dial tcp: connection refused"))
	var te *channel.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("transport errors must be transient, got %v", err)
	}
}

func TestNewRejectsEmptyToken(t *testing.T) {
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
}
