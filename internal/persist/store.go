// Package persist stores per-visitor workspace state on disk: saved code
// variants, the active variant, and the chat transcript. One JSON file per
// visitor keeps blast radius small and makes cleanup a file delete.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"pkt.systems/pslog"
	"pkt.systems/snipforge/core"
	"pkt.systems/snipforge/schema"
)

// WorkspaceSnapshot captures one visitor's workspace for persistence.
type WorkspaceSnapshot struct {
	ActiveTemplate schema.TemplateID        `json:"active_template,omitempty"`
	Templates      []schema.Template        `json:"templates,omitempty"`
	Transcript     []schema.TranscriptEntry `json:"transcript,omitempty"`
}

// Store persists workspace snapshots to disk.
type Store struct {
	dir string
	mu  sync.Mutex
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads a visitor snapshot from disk. The second return is false when
// the visitor has no saved state yet.
func (s *Store) Load(visitor schema.VisitorID) (WorkspaceSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(visitor)
}

func (s *Store) loadLocked(visitor schema.VisitorID) (WorkspaceSnapshot, bool, error) {
	path := s.pathForVisitor(visitor)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("workspace load miss", "visitor", visitor)
			}
			return WorkspaceSnapshot{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("workspace load failed", "visitor", visitor, "err", err)
		}
		return WorkspaceSnapshot{}, false, err
	}
	var snapshot WorkspaceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		if s.log != nil {
			s.log.Warn("workspace load failed", "visitor", visitor, "err", err)
		}
		return WorkspaceSnapshot{}, false, err
	}
	if s.log != nil {
		s.log.Debug("workspace load ok", "visitor", visitor, "templates", len(snapshot.Templates))
	}
	return snapshot, true, nil
}

// Save writes a visitor snapshot to disk.
func (s *Store) Save(visitor schema.VisitorID, snapshot WorkspaceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(visitor, snapshot)
}

func (s *Store) saveLocked(visitor schema.VisitorID, snapshot WorkspaceSnapshot) error {
	path := s.pathForVisitor(visitor)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		if s.log != nil {
			s.log.Warn("workspace save failed", "visitor", visitor, "err", err)
		}
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		if s.log != nil {
			s.log.Warn("workspace save failed", "visitor", visitor, "err", err)
		}
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "workspace-*.json")
	if err != nil {
		if s.log != nil {
			s.log.Warn("workspace save failed", "visitor", visitor, "err", err)
		}
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("workspace save failed", "visitor", visitor, "err", err)
		}
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("workspace save failed", "visitor", visitor, "err", err)
		}
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("workspace save failed", "visitor", visitor, "err", err)
		}
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("workspace save failed", "visitor", visitor, "err", err)
		}
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		if s.log != nil {
			s.log.Warn("workspace save failed", "visitor", visitor, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("workspace save ok", "visitor", visitor, "templates", len(snapshot.Templates))
	}
	return nil
}

// AppendTranscript appends entries to a visitor's transcript.
func (s *Store) AppendTranscript(visitor schema.VisitorID, entries ...schema.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, _, err := s.loadLocked(visitor)
	if err != nil {
		return err
	}
	snapshot.Transcript = append(snapshot.Transcript, entries...)
	return s.saveLocked(visitor, snapshot)
}

// SetActiveTemplate records which variant the visitor is working on.
func (s *Store) SetActiveTemplate(visitor schema.VisitorID, id schema.TemplateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, _, err := s.loadLocked(visitor)
	if err != nil {
		return err
	}
	snapshot.ActiveTemplate = id
	return s.saveLocked(visitor, snapshot)
}

// TranscriptRecorder returns a session sink that persists completed
// transcript entries for one visitor. Pending summaries are skipped; the
// done event re-emits them settled. Compose it with the UI sink via
// core.NewSinkFanout.
func (s *Store) TranscriptRecorder(visitor schema.VisitorID) core.SessionSink {
	return &transcriptRecorder{store: s, visitor: visitor}
}

type transcriptRecorder struct {
	core.NopSink
	store   *Store
	visitor schema.VisitorID
}

func (r *transcriptRecorder) OnTranscript(entry schema.TranscriptEntry) {
	if entry.Pending {
		return
	}
	if err := r.store.AppendTranscript(r.visitor, entry); err != nil && r.store.log != nil {
		r.store.log.Warn("transcript append failed", "visitor", r.visitor, "err", err)
	}
}

// Templates returns a template store scoped to one visitor's snapshot.
func (s *Store) Templates(visitor schema.VisitorID) core.TemplateStore {
	return &visitorTemplates{store: s, visitor: visitor}
}

type visitorTemplates struct {
	store   *Store
	visitor schema.VisitorID
}

func (t *visitorTemplates) Get(_ context.Context, id schema.TemplateID) (schema.Template, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	snapshot, _, err := t.store.loadLocked(t.visitor)
	if err != nil {
		return schema.Template{}, err
	}
	for _, tpl := range snapshot.Templates {
		if tpl.ID == id {
			return tpl, nil
		}
	}
	return schema.Template{}, schema.ErrTemplateNotFound
}

func (t *visitorTemplates) Put(_ context.Context, tpl schema.Template) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	snapshot, _, err := t.store.loadLocked(t.visitor)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range snapshot.Templates {
		if existing.ID == tpl.ID {
			snapshot.Templates[i] = tpl
			replaced = true
			break
		}
	}
	if !replaced {
		snapshot.Templates = append(snapshot.Templates, tpl)
	}
	return t.store.saveLocked(t.visitor, snapshot)
}

func (t *visitorTemplates) List(_ context.Context) ([]schema.Template, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	snapshot, _, err := t.store.loadLocked(t.visitor)
	if err != nil {
		return nil, err
	}
	return append([]schema.Template{}, snapshot.Templates...), nil
}

func (s *Store) pathForVisitor(visitor schema.VisitorID) string {
	name := sanitize(string(visitor))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
