// Package telegram adapts gopkg.in/telebot.v4 to herald's channel.Sender
// contract, including error classification.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"herald/internal/channel"
	logx "herald/pkg/logx"
)

type Config struct {
	Token string
	// RatePerSec is a client-side send guard so herald rarely trips
	// Telegram's server-side limit in the first place. 0 means default.
	RatePerSec int
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// Send delivers one payload. Failures come back classified:
// FloodError → channel.RateLimitError, 4xx API errors → PermanentError,
// everything else (5xx, transport) → TransientError.
func (a *Adapter) Send(ctx context.Context, to channel.Target, p channel.Payload) (channel.MessageRef, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return channel.MessageRef{}, channel.Transient(err)
	}

	chat := &tele.Chat{ID: to.ChatID}
	opt := &tele.SendOptions{
		ParseMode:             p.ParseMode,
		DisableWebPagePreview: p.DisablePreview,
		ThreadID:              to.ThreadID,
	}

	msg, err := a.bot.Send(chat, p.Text, opt)
	if err != nil {
		return channel.MessageRef{}, classify(err)
	}
	return channel.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func classify(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &channel.RateLimitError{
			RetryAfter: time.Duration(flood.RetryAfter) * time.Second,
			Err:        err,
		}
	}
	var api *tele.Error
	if errors.As(err, &api) {
		if api.Code >= 500 {
			return channel.Transient(err)
		}
		// 4xx: forbidden, chat not found, bad payload — retrying cannot help.
		return channel.Permanent(api.Description, err)
	}
	// Transport-level failure (timeout, DNS, connection reset).
	return channel.Transient(err)
}
