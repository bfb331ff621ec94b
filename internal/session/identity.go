package session

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// HeaderName carries an explicit session id and takes precedence over the
// session cookie.
const HeaderName = "X-Session-ID"

const valueID = "id"

// Identity resolves the session id for a request. Browser clients are
// tracked with a signed cookie; API clients may send HeaderName instead.
type Identity struct {
	store *sessions.CookieStore
	name  string
}

// NewIdentity creates an Identity from cfg. When no secret is configured
// a random one is generated, so cookies do not survive a restart.
func NewIdentity(cfg *Config, logger *slog.Logger) (*Identity, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		logger.Warn("no session secret configured, using an ephemeral key")
	}

	key := sha256.Sum256(secret)
	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.TTLDuration() / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Identity{store: store, name: cfg.CookieName}, nil
}

// Resolve returns the session id for r. Without a header or valid cookie a
// new id is issued and written to w as a cookie.
func (i *Identity) Resolve(w http.ResponseWriter, r *http.Request) (string, error) {
	if id := r.Header.Get(HeaderName); id != "" {
		if !ValidID(id) {
			return "", ErrInvalidID
		}
		return id, nil
	}

	// a cookie that fails verification yields a fresh session
	sess, _ := i.store.Get(r, i.name)
	if id, ok := sess.Values[valueID].(string); ok && ValidID(id) {
		return id, nil
	}

	id := uuid.NewString()
	sess.Values[valueID] = id
	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("save session cookie: %w", err)
	}
	return id, nil
}

// Forget expires the session cookie on w. Header-identified sessions are
// unaffected.
func (i *Identity) Forget(w http.ResponseWriter, r *http.Request) error {
	if r.Header.Get(HeaderName) != "" {
		return nil
	}
	sess, _ := i.store.Get(r, i.name)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}
