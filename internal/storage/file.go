package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "herald/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.announce.jsonl        (append-only JSON Lines audit)
//   - <prefix>.states.snapshot.json  (periodic snapshot)
//   - <prefix>.states.journal.jsonl  (append-only journal)
//   - <prefix>.fps.journal.jsonl     (append-only fingerprint journal)
//
// Journals are periodically compacted into their snapshots.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	announceFile *os.File

	statesSnapshotPath string
	statesJournalFile  *os.File
	states             map[string]ContentRecord

	fpsSnapshotPath string
	fpsJournalFile  *os.File
	fps             map[string]FingerprintMeta

	writes int
}

const fileCompactEvery = 1000

type stateJournalRecord struct {
	Op    string         `json:"op"` // "put" | "del" | "clear"
	State *ContentRecord `json:"state,omitempty"`
	ID    string         `json:"id,omitempty"`
}

type fpJournalRecord struct {
	FP   string          `json:"fp"`
	Meta FingerprintMeta `json:"meta"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	announcePath := prefix + ".announce.jsonl"
	statesSnapPath := prefix + ".states.snapshot.json"
	statesJournalPath := prefix + ".states.journal.jsonl"
	fpsSnapPath := prefix + ".fps.snapshot.json"
	fpsJournalPath := prefix + ".fps.journal.jsonl"

	af, err := os.OpenFile(announcePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	states := map[string]ContentRecord{}
	_ = loadSnapshot(statesSnapPath, &states)
	_ = replayStateJournal(statesJournalPath, states)

	fps := map[string]FingerprintMeta{}
	_ = loadSnapshot(fpsSnapPath, &fps)
	_ = replayFPJournal(fpsJournalPath, fps)

	sj, err := os.OpenFile(statesJournalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	fj, err := os.OpenFile(fpsJournalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		_ = sj.Close()
		return nil, err
	}

	return &fileStore{
		log:                log,
		announceFile:       af,
		statesSnapshotPath: statesSnapPath,
		statesJournalFile:  sj,
		states:             states,
		fpsSnapshotPath:    fpsSnapPath,
		fpsJournalFile:     fj,
		fps:                fps,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, f := range []**os.File{&s.announceFile, &s.statesJournalFile, &s.fpsJournalFile} {
		if *f != nil {
			if err := (*f).Close(); err != nil && first == nil {
				first = err
			}
			*f = nil
		}
	}
	return first
}

func (s *fileStore) PutContentState(ctx context.Context, r ContentRecord) error {
	_ = ctx
	if strings.TrimSpace(r.ID) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statesJournalFile == nil {
		return errors.New("states journal closed")
	}
	s.states[r.ID] = r
	if err := json.NewEncoder(s.statesJournalFile).Encode(stateJournalRecord{Op: "put", State: &r}); err != nil {
		return err
	}
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) GetContentState(ctx context.Context, id string) (ContentRecord, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.states[id]
	return r, ok, nil
}

func (s *fileStore) AllContentStates(ctx context.Context) ([]ContentRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ContentRecord, 0, len(s.states))
	for _, r := range s.states {
		out = append(out, r)
	}
	return out, nil
}

func (s *fileStore) RemoveContentStates(ctx context.Context, ids []string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statesJournalFile == nil {
		return errors.New("states journal closed")
	}
	enc := json.NewEncoder(s.statesJournalFile)
	for _, id := range ids {
		if _, ok := s.states[id]; !ok {
			continue
		}
		delete(s.states, id)
		if err := enc.Encode(stateJournalRecord{Op: "del", ID: id}); err != nil {
			return err
		}
	}
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) ClearContentStates(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statesJournalFile == nil {
		return errors.New("states journal closed")
	}
	s.states = map[string]ContentRecord{}
	if err := json.NewEncoder(s.statesJournalFile).Encode(stateJournalRecord{Op: "clear"}); err != nil {
		return err
	}
	return s.compactStatesLocked()
}

func (s *fileStore) PutFingerprint(ctx context.Context, fp string, meta FingerprintMeta) error {
	_ = ctx
	fp = strings.TrimSpace(fp)
	if fp == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fpsJournalFile == nil {
		return errors.New("fingerprint journal closed")
	}
	s.fps[fp] = meta
	if err := json.NewEncoder(s.fpsJournalFile).Encode(fpJournalRecord{FP: fp, Meta: meta}); err != nil {
		return err
	}
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fps[strings.TrimSpace(fp)]
	return ok, nil
}

func (s *fileStore) AppendAnnounce(ctx context.Context, e AnnounceEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.announceFile == nil {
		return errors.New("announce file closed")
	}
	return json.NewEncoder(s.announceFile).Encode(e)
}

func (s *fileStore) maybeCompactLocked() {
	s.writes++
	if s.writes%fileCompactEvery != 0 {
		return
	}
	if err := s.compactStatesLocked(); err != nil {
		s.log.Debug("state snapshot compact failed", logx.Err(err))
	}
	if err := s.compactFPsLocked(); err != nil {
		s.log.Debug("fingerprint snapshot compact failed", logx.Err(err))
	}
}

func (s *fileStore) compactStatesLocked() error {
	if err := writeSnapshot(s.statesSnapshotPath, s.states); err != nil {
		return err
	}
	return truncateJournal(s.statesJournalFile)
}

func (s *fileStore) compactFPsLocked() error {
	if err := writeSnapshot(s.fpsSnapshotPath, s.fps); err != nil {
		return err
	}
	return truncateJournal(s.fpsJournalFile)
}

func writeSnapshot(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func truncateJournal(f *os.File) error {
	if f == nil {
		return nil
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

func replayStateJournal(path string, out map[string]ContentRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r stateJournalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case "put":
			if r.State != nil && r.State.ID != "" {
				out[r.State.ID] = *r.State
			}
		case "del":
			delete(out, r.ID)
		case "clear":
			for k := range out {
				delete(out, k)
			}
		}
	}
	return sc.Err()
}

func replayFPJournal(path string, out map[string]FingerprintMeta) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r fpJournalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.FP == "" {
			continue
		}
		out[r.FP] = r.Meta
	}
	return sc.Err()
}
