package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCookieName = "esw_session"
	contextKey        = "signup.session"
)

type ManagerConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
	Logger     *logrus.Logger
}

// Manager binds a Session to every request through a cookie.
type Manager struct {
	store Store
	cfg   ManagerConfig
}

func NewManager(store Store, cfg ManagerConfig) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Manager{store: store, cfg: cfg}
}

// Store returns the backing session store.
func (m *Manager) Store() Store {
	return m.store
}

// Middleware loads the caller's session, or starts a new one, and refreshes the cookie.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := m.resolve(c)
		if err != nil {
			m.cfg.Logger.WithError(err).WithField("path", c.Request.URL.Path).Error("load session")
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(m.cfg.CookieName, sess.ID, int(m.cfg.TTL/time.Second), "/", "", m.cfg.Secure, true)
		c.Set(contextKey, sess)
		c.Next()
	}
}

func (m *Manager) resolve(c *gin.Context) (*Session, error) {
	id, err := c.Cookie(m.cfg.CookieName)
	if err == nil && id != "" {
		sess, err := m.store.Load(c.Request.Context(), id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return New(uuid.NewString()), nil
}

// FromContext returns the session bound by Middleware.
func FromContext(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*Session)
	return sess, ok
}
