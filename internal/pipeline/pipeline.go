// Package pipeline composes the core: duplicate detector, content tracker,
// and delivery queue. Every detection path funnels through Ingest so an item
// arriving from independent paths is announced at most once.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"herald/internal/channel"
	"herald/internal/content"
	"herald/internal/dedup"
	"herald/internal/delivery"
	"herald/internal/eventbus"
	"herald/internal/source"
	logx "herald/pkg/logx"
)

// Decision is the outcome of ingesting one detected item.
type Decision string

const (
	// DecisionQueued: accepted and handed to the delivery queue.
	DecisionQueued Decision = "queued"
	// DecisionDuplicate: rejected by identity or fingerprint dedup.
	DecisionDuplicate Decision = "duplicate"
	// DecisionStale: rejected by the freshness gate.
	DecisionStale Decision = "stale"
	// DecisionInvalid: rejected by validation (empty id).
	DecisionInvalid Decision = "invalid"
)

// Result carries the decision and, for queued items, the delivery receipt.
type Result struct {
	Decision Decision
	Receipt  *delivery.Receipt
}

type Config struct {
	// Target is the chat announcements are delivered to.
	Target channel.Target
}

type Pipeline struct {
	mu  sync.Mutex
	cfg Config

	log     logx.Logger
	bus     eventbus.Bus
	det     *dedup.Detector
	tracker *content.Tracker
	queue   *delivery.Queue
}

func New(cfg Config, det *dedup.Detector, tracker *content.Tracker, queue *delivery.Queue, bus eventbus.Bus, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		det:     det,
		tracker: tracker,
		queue:   queue,
	}
}

// SetTarget switches the announce chat; queued announcements keep the target
// they were enqueued with.
func (p *Pipeline) SetTarget(t channel.Target) {
	p.mu.Lock()
	p.cfg.Target = t
	p.mu.Unlock()
}

func (p *Pipeline) target() channel.Target {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Target
}

// Ingest decides freshness and uniqueness for one detected item and, if it
// survives, queues the announcement. The completion callback marks the
// content announced only after the channel accepted it.
//
// Callers must not interleave awaited work between detection and Ingest for
// the same id; the check-then-act inside runs without suspension points.
func (p *Pipeline) Ingest(ctx context.Context, it source.Item) (Result, error) {
	id := strings.TrimSpace(it.ID)
	if id == "" {
		return Result{Decision: DecisionInvalid}, content.ErrEmptyID
	}
	if it.DetectedAt.IsZero() {
		it.DetectedAt = time.Now()
	}

	normURL := dedup.NormalizeURL(it.URL)
	ctype := it.Type
	if ctype == "" || ctype == dedup.ContentUnknown {
		ctype = dedup.ContentTypeOf(normURL)
	}
	meta := dedup.Meta{At: it.DetectedAt, Source: it.Source}

	// Identity dedup: id and normalized URL are both keys, so the same item
	// posted through a mirror front-end still collides.
	if p.det.Seen(id) || (normURL != "" && p.det.Seen(normURL)) {
		p.publishDetect(eventbus.EventDuplicate, it, id)
		return Result{Decision: DecisionDuplicate}, nil
	}
	fp, fpOK := dedup.Fingerprint(id, it.Title, it.PublishedAt)
	if fpOK && p.det.SeenFingerprint(ctx, fp) {
		p.det.MarkSeen(id, meta)
		if normURL != "" {
			p.det.MarkSeen(normURL, meta)
		}
		p.publishDetect(eventbus.EventDuplicate, it, id)
		return Result{Decision: DecisionDuplicate}, nil
	}

	fresh := p.tracker.IsNew(id, it.PublishedAt, it.DetectedAt)

	// Seen marks go in regardless of freshness so later detections of the
	// same stale item short-circuit in the detector.
	p.det.MarkSeen(id, meta)
	if normURL != "" {
		p.det.MarkSeen(normURL, meta)
	}
	if fpOK {
		p.det.MarkFingerprint(fp, meta)
	}

	if !fresh {
		p.publishDetect(eventbus.EventStale, it, id)
		p.log.Debug("content rejected as stale",
			logx.String("id", id), logx.Time("published_at", it.PublishedAt), logx.String("source", it.Source))
		return Result{Decision: DecisionStale}, nil
	}

	if _, tracked := p.tracker.Get(id); !tracked {
		if err := p.tracker.Add(id, content.State{
			Type:        ctype,
			PublishedAt: it.PublishedAt,
			Source:      it.Source,
			URL:         normURL,
			Title:       it.Title,
			Meta:        it.Meta,
		}); err != nil {
			return Result{Decision: DecisionInvalid}, err
		}
	} else if err := p.tracker.Update(id, content.Patch{
		Type:        ctype,
		PublishedAt: it.PublishedAt,
		Source:      it.Source,
		URL:         normURL,
		Title:       it.Title,
		Meta:        it.Meta,
	}); err != nil {
		return Result{Decision: DecisionInvalid}, err
	}

	receipt, err := p.queue.Enqueue(ctx, p.target(), channel.Payload{
		Text:           formatAnnouncement(it, ctype, normURL),
		DisablePreview: ctype == dedup.ContentPost,
	}, delivery.Options{
		Priority:  priorityFor(ctype),
		ContentID: id,
		OnDone: func(err error) {
			if err != nil {
				p.log.Debug("announcement not delivered", logx.String("id", id), logx.Err(err))
				return
			}
			if merr := p.tracker.MarkAnnounced(id); merr != nil {
				p.log.Warn("mark announced failed", logx.String("id", id), logx.Err(merr))
			}
		},
	})
	if err != nil {
		return Result{Decision: DecisionInvalid}, err
	}

	p.log.Info("announcement accepted",
		logx.String("id", id), logx.String("type", string(ctype)), logx.String("source", it.Source))
	return Result{Decision: DecisionQueued, Receipt: receipt}, nil
}

// Sink adapts Ingest to the source.Sink contract.
func (p *Pipeline) Sink() source.Sink {
	return func(ctx context.Context, it source.Item) {
		if _, err := p.Ingest(ctx, it); err != nil {
			// Validation errors are operator-facing.
			p.log.Error("item rejected", logx.String("id", it.ID), logx.String("source", it.Source), logx.Err(err))
		}
	}
}

// priorityFor ranks livestreams above videos above posts: a live event loses
// value fastest.
func priorityFor(t dedup.ContentType) int {
	switch t {
	case dedup.ContentLivestream:
		return 10
	case dedup.ContentVideo:
		return 5
	case dedup.ContentPost:
		return 3
	default:
		return 0
	}
}

func formatAnnouncement(it source.Item, t dedup.ContentType, url string) string {
	var b strings.Builder
	switch t {
	case dedup.ContentLivestream:
		b.WriteString("🔴 LIVE: ")
	case dedup.ContentVideo:
		b.WriteString("🎬 ")
	case dedup.ContentPost:
		b.WriteString("📝 ")
	}
	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = it.ID
	}
	b.WriteString(title)
	if url != "" {
		b.WriteString("\n")
		b.WriteString(url)
	}
	return b.String()
}

func (p *Pipeline) publishDetect(typ string, it source.Item, id string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: typ, Data: map[string]any{
		"id":     id,
		"source": it.Source,
		"type":   string(it.Type),
	}})
}
