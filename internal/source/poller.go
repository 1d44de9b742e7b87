package source

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "herald/pkg/logx"
)

// Poller runs registered fetchers on cron schedules and funnels everything
// they return into one sink. It is the scheduling shell for the API-fallback
// detection path; push-based collaborators call the sink directly.
type Poller struct {
	mu sync.Mutex

	log  logx.Logger
	sink Sink

	parser cron.Parser
	c      *cron.Cron

	fetchers map[string]cron.EntryID
	running  bool
}

// fetchTimeout bounds one fetcher run.
const fetchTimeout = 30 * time.Second

func NewPoller(sink Sink, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Poller{
		log:  log,
		sink: sink,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		fetchers: map[string]cron.EntryID{},
	}
	p.c = cron.New(cron.WithParser(p.parser))
	return p
}

// Register schedules f on the given cron spec (e.g. "@every 2m").
func (p *Poller) Register(spec string, f Fetcher) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.fetchers[f.Name()]; ok {
		p.c.Remove(old)
	}
	id, err := p.c.AddFunc(spec, func() { p.runOne(f) })
	if err != nil {
		return err
	}
	p.fetchers[f.Name()] = id
	p.log.Debug("fetcher registered", logx.String("fetcher", f.Name()), logx.String("spec", spec))
	return nil
}

func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.c.Start()
	p.log.Info("poller started", logx.Int("fetchers", len(p.fetchers)))
}

func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	<-p.c.Stop().Done()
	p.log.Info("poller stopped")
}

func (p *Poller) runOne(f Fetcher) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	start := time.Now()
	items, err := f.Fetch(ctx)
	if err != nil {
		p.log.Warn("fetch failed", logx.String("fetcher", f.Name()), logx.Err(err))
		return
	}
	for i := range items {
		it := items[i]
		if it.Source == "" {
			it.Source = f.Name()
		}
		if it.DetectedAt.IsZero() {
			it.DetectedAt = time.Now()
		}
		p.sink(ctx, it)
	}
	p.log.Debug("fetch completed",
		logx.String("fetcher", f.Name()), logx.Int("items", len(items)), logx.Duration("took", time.Since(start)))
}
