// Package session owns the authentication token and the cached user
// identity. State lives in a single JSON file so it survives restarts and
// can be observed by other processes of the same user.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/idilsaglam/tasks/internal/model"
	"github.com/idilsaglam/tasks/internal/store/jsonstore"
)

const (
	fileName = "session.json"

	// EnvToken overrides the stored token when set.
	EnvToken = "TASKS_TOKEN"

	SourceEnv  = "env"
	SourceFile = "file"
)

// Session is the authenticated identity of this client.
type Session struct {
	Token     string      `json:"token"`
	User      *model.User `json:"user,omitempty"`
	Source    string      `json:"source"`     // "env" | "file"
	SavedAt   time.Time   `json:"saved_at"`   // when we saved to file
	ExpiresAt *time.Time  `json:"expires_at"` // optional, read from JWT tokens
}

// Authenticated reports whether s carries a usable token. A nil session is
// unauthenticated.
func (s *Session) Authenticated() bool {
	return s != nil && strings.TrimSpace(s.Token) != ""
}

// Store persists the session under dir.
type Store struct {
	dir    string
	log    *zap.Logger
	getenv func(string) string

	mu sync.Mutex
	// env token cleared in this process; it cannot be unset for the parent
	// shell, so it is ignored instead
	rejected string
}

// NewStore returns a Store rooted at dir (usually ~/.tasks).
func NewStore(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log, getenv: os.Getenv}
}

// Path is the location of the session file.
func (s *Store) Path() string { return filepath.Join(s.dir, fileName) }

// Get returns the current session, or nil when nobody is logged in.
func (s *Store) Get() (*Session, error) {
	// 1) env override
	if tok := s.envToken(); tok != "" && !s.isRejected(tok) {
		return &Session{Token: tok, Source: SourceEnv, ExpiresAt: Expiry(tok)}, nil
	}
	// 2) file
	return s.load()
}

func (s *Store) envToken() string {
	return stripBearer(strings.TrimSpace(s.getenv(EnvToken)))
}

func (s *Store) isRejected(tok string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected == tok
}

func (s *Store) load() (*Session, error) {
	var sess Session
	if err := jsonstore.Load(s.Path(), &sess); err != nil {
		if errors.Is(err, jsonstore.ErrNotFound) {
			return nil, nil // not logged in
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	sess.Token = stripBearer(sess.Token)
	if !sess.Authenticated() {
		return nil, nil
	}
	return &sess, nil
}

// Token returns the current token or "" when absent. Read errors count as
// absent; they are logged.
func (s *Store) Token() string {
	sess, err := s.Get()
	if err != nil {
		s.log.Warn("session unreadable", zap.Error(err))
		return ""
	}
	if sess == nil {
		return ""
	}
	return sess.Token
}

// Save persists token, replacing whatever was stored before.
func (s *Store) Save(token string) error {
	return s.SaveSession(token, nil)
}

// SaveSession persists token together with the cached user.
func (s *Store) SaveSession(token string, user *model.User) error {
	token = stripBearer(strings.TrimSpace(token))
	if token == "" {
		return errors.New("empty token")
	}
	sess := Session{
		Token:     token,
		User:      user,
		Source:    SourceFile,
		SavedAt:   time.Now(),
		ExpiresAt: Expiry(token),
	}
	// write with 0600 (owner-only)
	if err := jsonstore.Save(s.Path(), sess, 0o600); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.log.Debug("session saved", zap.String("path", s.Path()))
	return nil
}

// Clear removes the token and the cached user together. It is safe to call
// when nothing is stored. A token from the environment is ignored by this
// Store from then on.
func (s *Store) Clear() error {
	if tok := s.envToken(); tok != "" {
		s.mu.Lock()
		s.rejected = tok
		s.mu.Unlock()
	}
	if err := jsonstore.Remove(s.Path()); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.log.Debug("session cleared", zap.String("path", s.Path()))
	return nil
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
