package remote

import (
	"encoding/json"
	"time"

	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/store"
	"golang.org/x/oauth2"
)

const sessionKey = "auth"

// Session is the backend login returned by OTP verification
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      store.User `json:"user"`
}

// SessionStore keeps the backend session in the preference store
type SessionStore struct {
	kv *store.KV
}

func NewSessionStore(kv *store.KV) *SessionStore {
	return &SessionStore{kv: kv}
}

// Save persists s until it expires
func (s *SessionStore) Save(sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := time.Until(sess.ExpiresAt)
	if sess.ExpiresAt.IsZero() || ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return s.kv.SetSession(sessionKey, data, ttl)
}

// Load returns the stored session or ErrNoSession
func (s *SessionStore) Load() (*Session, error) {
	data, err := s.kv.GetSession(sessionKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, apperrors.ErrNoSession
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, apperrors.ErrNoSession.WithCause(err)
	}
	return &sess, nil
}

// Clear signs out of the backend
func (s *SessionStore) Clear() error {
	return s.kv.DeleteSession(sessionKey)
}

// Token implements oauth2.TokenSource over the stored session
func (s *SessionStore) Token() (*oauth2.Token, error) {
	sess, err := s.Load()
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: sess.Token,
		TokenType:   "Bearer",
		Expiry:      sess.ExpiresAt,
	}, nil
}
