package httpapi

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	authsystem "github.com/neecatt/UserAuthSystem"
	"github.com/neecatt/UserAuthSystem/middleware"
	"github.com/sirupsen/logrus"
)

// Engine is the subset of *authsystem.Engine the handlers call.
type Engine interface {
	middleware.Validator
	Register(ctx context.Context, email, password string) (*authsystem.User, error)
	Login(ctx context.Context, email, password string) (*authsystem.LoginResult, error)
	CompleteLoginChallenge(ctx context.Context, challengeID, code string) (*authsystem.SecondFactorAssertion, error)
	LoginWithTwoFactor(ctx context.Context, assertionID string) (*authsystem.LoginResult, error)
	ChangePassword(ctx context.Context, userID, current, next string) (*authsystem.User, error)
	GetUser(ctx context.Context, userID string) (*authsystem.User, error)
	BeginTwoFactorEnrollment(ctx context.Context, userID string) (*authsystem.TwoFactorEnrollment, error)
	ConfirmTwoFactorEnrollment(ctx context.Context, userID, code string) error
	VerifyTwoFactor(ctx context.Context, userID, code string) (*authsystem.SecondFactorAssertion, error)
	DisableTwoFactor(ctx context.Context, userID, code string) error
}

// Handler serves the auth API.
type Handler struct {
	engine  Engine
	logger  logrus.FieldLogger
	metrics *Metrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics enables HTTP metrics.
func WithMetrics(m *Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// New returns a Handler backed by engine.
func New(engine Engine, opts ...Option) *Handler {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	h := &Handler{engine: engine, logger: discard}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.requestContext, h.metrics.instrument, h.logRequests)
	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/register", h.register).Methods(http.MethodPost)
	v1.HandleFunc("/login", h.login).Methods(http.MethodPost)
	v1.HandleFunc("/login/2fa/verify", h.completeLoginChallenge).Methods(http.MethodPost)
	v1.HandleFunc("/login/2fa", h.loginWithTwoFactor).Methods(http.MethodPost)

	guard := middleware.Guard(h.engine)
	v1.Handle("/me", guard(http.HandlerFunc(h.me))).Methods(http.MethodGet)
	v1.Handle("/password", guard(http.HandlerFunc(h.changePassword))).Methods(http.MethodPost)
	v1.Handle("/2fa/enroll", guard(http.HandlerFunc(h.beginEnrollment))).Methods(http.MethodPost)
	v1.Handle("/2fa/confirm", guard(http.HandlerFunc(h.confirmEnrollment))).Methods(http.MethodPost)
	v1.Handle("/2fa/verify", guard(http.HandlerFunc(h.verifyTwoFactor))).Methods(http.MethodPost)
	v1.Handle("/2fa/disable", guard(middleware.RequireTwoFactor(http.HandlerFunc(h.disableTwoFactor)))).Methods(http.MethodPost)

	return router
}

// requestContext attaches a request ID and the client IP for audit records.
func (h *Handler) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := authsystem.WithRequestID(r.Context(), requestID)
		ctx = authsystem.WithClientIP(ctx, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		h.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rw.statusCode,
			"duration":   time.Since(start).String(),
			"request_id": w.Header().Get("X-Request-ID"),
		}).Info("request")
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
