package storage

import (
	"context"
	"errors"
	"strings"

	logx "herald/pkg/logx"
)

// Store is the persistence API used by the detector and the content tracker.
// All methods are best-effort; callers must not gate decisions on errors.
type Store interface {
	PutContentState(ctx context.Context, r ContentRecord) error
	GetContentState(ctx context.Context, id string) (ContentRecord, bool, error)
	AllContentStates(ctx context.Context) ([]ContentRecord, error)
	RemoveContentStates(ctx context.Context, ids []string) error
	ClearContentStates(ctx context.Context) error

	PutFingerprint(ctx context.Context, fp string, meta FingerprintMeta) error
	HasFingerprint(ctx context.Context, fp string) (bool, error)

	AppendAnnounce(ctx context.Context, e AnnounceEntry) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
