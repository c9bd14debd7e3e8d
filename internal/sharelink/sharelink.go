// Package sharelink publishes finished snippets under opaque tokens.
// Published code is encrypted at rest; the token in the share URL is the
// only handle, so a copied state directory leaks nothing readable.
package sharelink

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
	"pkt.systems/snipforge/schema"
)

const (
	shareFileExt   = ".enc"
	descriptorName = "snipforge:sharelink"
)

var tokenRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// SharedSnippet is one published snippet.
type SharedSnippet struct {
	Visitor   schema.VisitorID    `json:"visitor"`
	Name      schema.TemplateName `json:"name,omitempty"`
	Code      string              `json:"code"`
	CreatedAt time.Time           `json:"created_at"`
}

// Store publishes and resolves shared snippets.
type Store struct {
	keyStorePath string
	shareDir     string
	log          pslog.Logger
}

// NewStore initializes the share store and ensures the root key exists.
func NewStore(keyStorePath, shareDir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(keyStorePath) == "" {
		return nil, errors.New("key store path is required")
	}
	if strings.TrimSpace(shareDir) == "" {
		return nil, errors.New("share directory is required")
	}
	if err := os.MkdirAll(filepath.Dir(keyStorePath), 0o700); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(shareDir, 0o700); err != nil {
		return nil, err
	}
	store, err := keymgmt.LoadProto(keyStorePath)
	if err != nil {
		return nil, err
	}
	if _, err := store.EnsureRootKey(); err != nil {
		return nil, err
	}
	if err := store.Commit(); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("share_dir", shareDir)
	}
	return &Store{keyStorePath: keyStorePath, shareDir: shareDir, log: logger}, nil
}

// Publish encrypts the snippet and returns its token.
func (s *Store) Publish(visitor schema.VisitorID, name schema.TemplateName, code string) (schema.ShareToken, error) {
	if strings.TrimSpace(code) == "" {
		return "", errors.New("code is required")
	}
	snippet := SharedSnippet{
		Visitor:   visitor,
		Name:      name,
		Code:      code,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(snippet)
	if err != nil {
		return "", err
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}
	material, root, err := s.material()
	if err != nil {
		if s.log != nil {
			s.log.Warn("share publish failed", "err", err)
		}
		return "", err
	}
	kg := kryptograf.New(root)

	tmp, err := os.CreateTemp(s.shareDir, "share-*.enc")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	writer, err := kg.EncryptWriter(tmp, material)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		if s.log != nil {
			s.log.Warn("share publish failed", "err", err)
		}
		return "", err
	}
	if _, err := io.Copy(writer, bytes.NewReader(payload)); err != nil {
		_ = writer.Close()
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := writer.Close(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	_ = tmp.Close()
	if err := os.Rename(tmpPath, s.pathForToken(token)); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if s.log != nil {
		s.log.Info("share published", "visitor", visitor, "code_len", len(code))
	}
	return token, nil
}

// Resolve decrypts the snippet behind a token. Unknown and malformed
// tokens both come back as schema.ErrShareNotFound; a prober learns
// nothing from the difference.
func (s *Store) Resolve(token schema.ShareToken) (SharedSnippet, error) {
	if !tokenRe.MatchString(string(token)) {
		return SharedSnippet{}, schema.ErrShareNotFound
	}
	file, err := os.Open(s.pathForToken(token))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SharedSnippet{}, schema.ErrShareNotFound
		}
		if s.log != nil {
			s.log.Warn("share resolve failed", "err", err)
		}
		return SharedSnippet{}, err
	}
	defer func() { _ = file.Close() }()

	material, root, err := s.material()
	if err != nil {
		if s.log != nil {
			s.log.Warn("share resolve failed", "err", err)
		}
		return SharedSnippet{}, err
	}
	kg := kryptograf.New(root)
	reader, err := kg.DecryptReader(file, material)
	if err != nil {
		if s.log != nil {
			s.log.Warn("share resolve failed", "err", err)
		}
		return SharedSnippet{}, err
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return SharedSnippet{}, err
	}
	var snippet SharedSnippet
	if err := json.Unmarshal(plain, &snippet); err != nil {
		return SharedSnippet{}, err
	}
	return snippet, nil
}

// Remove deletes a published snippet. Removing an unknown token is a
// no-op.
func (s *Store) Remove(token schema.ShareToken) error {
	if !tokenRe.MatchString(string(token)) {
		return nil
	}
	err := os.Remove(s.pathForToken(token))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		if s.log != nil {
			s.log.Warn("share remove failed", "err", err)
		}
		return err
	}
	return nil
}

func (s *Store) material() (keymgmt.Material, keymgmt.RootKey, error) {
	store, err := keymgmt.LoadProto(s.keyStorePath)
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	material, err := store.EnsureDescriptor(descriptorName, root, []byte(descriptorName))
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	if err := store.Commit(); err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	return material, root, nil
}

func (s *Store) pathForToken(token schema.ShareToken) string {
	return filepath.Join(s.shareDir, string(token)+shareFileExt)
}

func newToken() (schema.ShareToken, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return schema.ShareToken(hex.EncodeToString(buf[:])), nil
}
