// Package auth manages the workshop passwords that gate generation.
// Passwords live in a JSON file so a workshop host can edit them by hand;
// the store reloads when the file changes on disk.
package auth

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"pkt.systems/pslog"
	"pkt.systems/snipforge/schema"
)

// Mode selects how a password entry verifies input.
type Mode string

const (
	// ModeStatic compares input against a bcrypt hash.
	ModeStatic Mode = "static"
	// ModeRotating treats input as a TOTP code against a shared secret.
	// The valid code changes every period, so a password shouted in one
	// workshop is useless in the next.
	ModeRotating Mode = "rotating"
)

// Password is one stored workshop password.
type Password struct {
	ID    schema.PasswordID `json:"id"`
	Label string            `json:"label"`
	Mode  Mode              `json:"mode"`
	// Hash is the bcrypt hash for static entries.
	Hash string `json:"hash,omitempty"`
	// Secret is the base32 TOTP secret for rotating entries.
	Secret    string     `json:"secret,omitempty"`
	Disabled  bool       `json:"disabled,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Expired reports whether the entry is past its expiry at now.
func (p Password) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// Store manages workshop passwords stored on disk.
type Store struct {
	path      string
	mu        sync.RWMutex
	passwords map[schema.PasswordID]Password
	fileState fileState
	now       func() time.Time
	log       pslog.Logger
}

// NewStore loads or creates the password store.
func NewStore(path string, logger pslog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("password file path is required")
	}
	if logger != nil {
		logger = logger.With("password_file", path)
	}
	store := &Store{
		path:      path,
		passwords: make(map[schema.PasswordID]Password),
		now:       time.Now,
		log:       logger,
	}
	if err := store.ensureFile(); err != nil {
		return nil, err
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// Verify checks input against every stored password and returns the
// matching entry. The error distinguishes expired and disabled matches
// from plain mismatches so the client can show why access was refused.
func (s *Store) Verify(input string) (Password, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Password{}, schema.ErrPasswordRequired
	}
	if err := s.refreshIfNeeded(); err != nil {
		return Password{}, err
	}
	s.mu.RLock()
	entries := make([]Password, 0, len(s.passwords))
	for _, entry := range s.passwords {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	now := s.now()
	var matchErr error
	for _, entry := range entries {
		if !s.matches(entry, input) {
			continue
		}
		switch {
		case entry.Disabled:
			matchErr = schema.ErrPasswordDisabled
		case entry.Expired(now):
			matchErr = schema.ErrPasswordExpired
		default:
			return entry, nil
		}
	}
	if matchErr != nil {
		return Password{}, matchErr
	}
	return Password{}, schema.ErrInvalidPassword
}

func (s *Store) matches(entry Password, input string) bool {
	switch entry.Mode {
	case ModeRotating:
		return totp.Validate(input, entry.Secret)
	default:
		return bcrypt.CompareHashAndPassword([]byte(entry.Hash), []byte(input)) == nil
	}
}

// AddStatic hashes plaintext and stores a static entry.
func (s *Store) AddStatic(label, plaintext string, expiresAt *time.Time) (Password, error) {
	if strings.TrimSpace(plaintext) == "" {
		return Password{}, errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return Password{}, err
	}
	entry := Password{
		ID:        schema.PasswordID(newID()),
		Label:     strings.TrimSpace(label),
		Mode:      ModeStatic,
		Hash:      string(hash),
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	}
	return s.add(entry)
}

// AddRotating generates a TOTP secret and stores a rotating entry. The
// returned entry carries the secret so the caller can render a join code.
func (s *Store) AddRotating(label, issuer string, expiresAt *time.Time) (Password, error) {
	if strings.TrimSpace(issuer) == "" {
		issuer = "snipforge"
	}
	account := strings.TrimSpace(label)
	if account == "" {
		account = "workshop"
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
	})
	if err != nil {
		return Password{}, err
	}
	entry := Password{
		ID:        schema.PasswordID(newID()),
		Label:     strings.TrimSpace(label),
		Mode:      ModeRotating,
		Secret:    key.Secret(),
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	}
	return s.add(entry)
}

func (s *Store) add(entry Password) (Password, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return Password{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[entry.ID] = entry
	if err := s.saveLocked(); err != nil {
		delete(s.passwords, entry.ID)
		if s.log != nil {
			s.log.Warn("password add failed", "password", entry.ID, "err", err)
		}
		return Password{}, err
	}
	if s.log != nil {
		s.log.Info("password added", "password", entry.ID, "mode", string(entry.Mode))
	}
	return entry, nil
}

// List returns all entries sorted by creation time.
func (s *Store) List() ([]Password, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Password, 0, len(s.passwords))
	for _, entry := range s.passwords {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Get returns one entry by ID.
func (s *Store) Get(id schema.PasswordID) (Password, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return Password{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.passwords[id]
	if !ok {
		return Password{}, errors.New("password not found")
	}
	return entry, nil
}

// SetDisabled toggles an entry without deleting it, so a leaked password
// can be shut off while keeping its audit trail.
func (s *Store) SetDisabled(id schema.PasswordID, disabled bool) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.passwords[id]
	if !ok {
		return errors.New("password not found")
	}
	entry.Disabled = disabled
	s.passwords[id] = entry
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("password update failed", "password", id, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("password updated", "password", id, "disabled", disabled)
	}
	return nil
}

// Remove deletes an entry.
func (s *Store) Remove(id schema.PasswordID) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.passwords[id]
	if !ok {
		return errors.New("password not found")
	}
	delete(s.passwords, id)
	if err := s.saveLocked(); err != nil {
		s.passwords[id] = entry
		if s.log != nil {
			s.log.Warn("password remove failed", "password", id, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("password removed", "password", id)
	}
	return nil
}

func (s *Store) ensureFile() error {
	if _, statErr := os.Stat(s.path); statErr == nil {
		return nil
	} else if !os.IsNotExist(statErr) {
		if s.log != nil {
			s.log.Warn("password store init failed", "err", statErr)
		}
		return statErr
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		if s.log != nil {
			s.log.Warn("password store init failed", "err", err)
		}
		return err
	}
	if err := os.WriteFile(s.path, []byte("[]\n"), 0o600); err != nil {
		if s.log != nil {
			s.log.Warn("password store init failed", "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("password store initialized")
	}
	return nil
}

func (s *Store) saveLocked() error {
	entries := make([]Password, 0, len(s.passwords))
	ids := make([]string, 0, len(s.passwords))
	for id := range s.passwords {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		entries = append(entries, s.passwords[schema.PasswordID(id)])
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "passwords-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return err
	}
	if info, err := os.Stat(s.path); err == nil {
		s.fileState = fileStateFromInfo(info)
	} else if s.log != nil {
		s.log.Warn("password store save failed to stat", "err", err)
	}
	if s.log != nil {
		s.log.Debug("password store save ok", "passwords", len(entries))
	}
	return nil
}

type fileState struct {
	modTime time.Time
	size    int64
	inode   uint64
	dev     uint64
}

func fileStateFromInfo(info os.FileInfo) fileState {
	state := fileState{
		modTime: info.ModTime(),
		size:    info.Size(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		state.inode = stat.Ino
		state.dev = stat.Dev
	}
	return state
}

func (s fileState) equal(other fileState) bool {
	return s.size == other.size &&
		s.modTime.Equal(other.modTime) &&
		s.inode == other.inode &&
		s.dev == other.dev
}

func (s *Store) refreshIfNeeded() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if s.log != nil {
			s.log.Warn("password store stat failed", "err", err)
		}
		return err
	}
	latest := fileStateFromInfo(info)
	s.mu.RLock()
	current := s.fileState
	s.mu.RUnlock()
	if current.equal(latest) {
		return nil
	}
	return s.loadFromDisk()
}

func (s *Store) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if s.log != nil {
			s.log.Warn("password store load failed", "err", err)
		}
		return err
	}
	var entries []Password
	if err := json.Unmarshal(data, &entries); err != nil {
		if s.log != nil {
			s.log.Warn("password store load failed", "err", err)
		}
		return err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if s.log != nil {
			s.log.Warn("password store load failed", "err", err)
		}
		return err
	}
	next := make(map[schema.PasswordID]Password, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			if s.log != nil {
				s.log.Warn("password store load failed", "err", "entry without id")
			}
			return errors.New("password entry without id")
		}
		next[entry.ID] = entry
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords = next
	s.fileState = fileStateFromInfo(info)
	if s.log != nil {
		s.log.Debug("password store load ok", "passwords", len(entries))
	}
	return nil
}
