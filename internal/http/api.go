package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"signup-portal/internal/csrf"
	"signup-portal/internal/metrics"
	"signup-portal/internal/repository"
	"signup-portal/internal/service"
	"signup-portal/internal/session"
)

const pageTemplate = "register.html"

// Handler wires HTTP routes to the registration flow.
type Handler struct {
	registrations  service.RegistrationService
	accounts       repository.AccountRepository
	sessions       *session.Manager
	issuer         *csrf.Issuer
	templates      *template.Template
	static         fs.FS
	requestTimeout time.Duration
	logger         *logrus.Logger
}

type HandlerDeps struct {
	Registrations  service.RegistrationService
	Accounts       repository.AccountRepository
	Sessions       *session.Manager
	Issuer         *csrf.Issuer
	Templates      *template.Template
	Static         fs.FS
	RequestTimeout time.Duration
	Logger         *logrus.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	return &Handler{
		registrations:  deps.Registrations,
		accounts:       deps.Accounts,
		sessions:       deps.Sessions,
		issuer:         deps.Issuer,
		templates:      deps.Templates,
		static:         deps.Static,
		requestTimeout: deps.RequestTimeout,
		logger:         deps.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger), securityHeaders())
	router.SetHTMLTemplate(h.templates)
	router.StaticFS("/static", http.FS(h.static))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/health", h.health)
	}

	page := router.Group("/", h.sessions.Middleware())
	{
		page.GET("/", h.renderPage)
		page.Any("/backend", h.submit)
	}
}

// RegisterResponse is the JSON body of every submission.
type RegisterResponse struct {
	Success        bool   `json:"success,omitempty"`
	SuccessMessage string `json:"success_message,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

func (h *Handler) renderPage(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	token, err := h.issuer.Ensure(c.Request.Context(), sess)
	if err != nil {
		h.logger.WithError(err).Error("issue csrf token")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, pageTemplate, gin.H{"CSRFToken": token})
}

func (h *Handler) submit(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Status(http.StatusOK)
		return
	}

	sess, ok := session.FromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, RegisterResponse{ErrorMessage: service.MsgFailure})
		return
	}

	started := time.Now()
	sub := service.Submission{
		Username:  c.PostForm("username"),
		Name:      c.PostForm("name"),
		LastName:  c.PostForm("last_name"),
		Email:     c.PostForm("email"),
		Password:  c.PostForm("password"),
		CSRFToken: c.PostForm(csrf.FormField),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()
	res := h.registrations.Register(ctx, sub, csrf.Token(sess))

	metrics.RegistrationAttemptsTotal.WithLabelValues(res.Kind.String()).Inc()
	metrics.RegistrationDurationSeconds.Observe(time.Since(started).Seconds())
	h.logResult(c, sess, res)

	if res.OK() {
		c.JSON(http.StatusOK, RegisterResponse{Success: true, SuccessMessage: res.Message})
		return
	}
	c.JSON(statusFor(res.Kind), RegisterResponse{ErrorMessage: res.Message})
}

func (h *Handler) logResult(c *gin.Context, sess *session.Session, res service.Result) {
	entry := h.logger.WithFields(logrus.Fields{
		"client_ip": c.ClientIP(),
		"outcome":   res.Kind.String(),
	})

	switch res.Kind {
	case service.KindSuccess:
		entry.Info("account registered")
	case service.KindInvalidCSRF:
		entry.WithFields(logrus.Fields{
			"session":    sessionRef(sess.ID),
			"user_agent": c.Request.UserAgent(),
			"has_token":  c.PostForm(csrf.FormField) != "",
		}).Warn("csrf token mismatch on registration")
	case service.KindFailure:
		entry.WithError(res.Cause).Error("registration failed")
	case service.KindConflict:
		if res.Cause != nil {
			entry.WithError(res.Cause).Warn("duplicate account rejected by store constraint")
		}
	}
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.accounts.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("health: account store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "account store unavailable"})
		return
	}
	if pinger, ok := h.sessions.Store().(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			h.logger.WithError(err).Warn("health: session store unavailable")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": "ok"})
}

func statusFor(kind service.ResultKind) int {
	switch kind {
	case service.KindSuccess:
		return http.StatusOK
	case service.KindIncomplete, service.KindWeakPassword, service.KindInvalidEmail, service.KindFieldTooLong:
		return http.StatusBadRequest
	case service.KindInvalidCSRF:
		return http.StatusForbidden
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// sessionRef shortens a session id for logs; the full id is a bearer secret.
func sessionRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
