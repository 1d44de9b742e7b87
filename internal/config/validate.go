package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ChatID parses the announce chat id. Telegram group/channel ids are negative
// int64s, so the field is kept as a string in config.
func (t TelegramConfig) ChatID() (int64, error) {
	s := strings.TrimSpace(t.AnnounceChat)
	if s == "" {
		return 0, fmt.Errorf("telegram.announce_chat is empty")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.announce_chat: invalid chat id %q: %w", t.AnnounceChat, err)
	}
	return id, nil
}

// Validate checks everything that can be checked without side effects:
// required fields, chat id shape, duration syntax, and ranges. Cron specs in
// sources are validated where they are registered.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := c.Telegram.ChatID(); err != nil {
		return err
	}
	if c.Telegram.RatePerSec < 0 {
		return fmt.Errorf("telegram.rate_per_sec must be >= 0")
	}

	for path, raw := range map[string]string{
		"content.max_age":            c.Content.MaxAge,
		"delivery.base_delay":        c.Delivery.BaseDelay,
		"delivery.burst_window":      c.Delivery.BurstWindow,
		"delivery.max_backoff":       c.Delivery.MaxBackoff,
		"delivery.rate_limit_buffer": c.Delivery.RateLimitBuffer,
		"delivery.shutdown_timeout":  c.Delivery.ShutdownTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if m := c.Delivery.BackoffMultiplier; m != 0 && m < 1 {
		return fmt.Errorf("delivery.backoff_multiplier must be >= 1")
	}
	if c.Delivery.BurstAllowance < 0 {
		return fmt.Errorf("delivery.burst_allowance must be >= 0")
	}
	if c.Delivery.MaxRetries < 0 {
		return fmt.Errorf("delivery.max_retries must be >= 0")
	}
	if c.Detector.MaxEntries < 0 {
		return fmt.Errorf("detector.max_entries must be >= 0")
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
