package form_mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/contactgate/contactgate/internal/store"
)

// Handler runs the submission pipeline: method, origin, rate limit,
// validation, spam, delivery, commit. Every path ends in one JSON response.
type Handler struct {
	cfg       *Config
	store     store.Store
	origin    *OriginGuard
	limiter   *RateLimiter
	validator *Validator
	spam      *SpamFilter
	composer  Composer
	notifier  Notifier
	now       func() time.Time
}

type Option func(*Handler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(cfg *Config, st store.Store, notifier Notifier, opts ...Option) *Handler {
	h := &Handler{
		cfg:       cfg,
		store:     st,
		origin:    NewOriginGuard(cfg.AllowedHosts),
		limiter:   NewRateLimiter(st, cfg.RateWindow),
		validator: NewValidator(),
		spam:      NewSpamFilter(cfg.SpamKeywords),
		composer: Composer{
			SiteName: cfg.SiteName,
			From:     cfg.FromAddr,
			To:       cfg.To,
		},
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	outcome := h.process(w, r)
	if outcome.Kind == KindDeliveryFailed {
		LoggerFromContext(r.Context()).Error("send error", "err", outcome.Cause)
	}
	if outcome.Kind == KindInvalidMethod {
		w.Header().Set("Allow", http.MethodPost)
	}
	if outcome.Kind == KindRateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(outcome.RetryAfter))
	}
	writeJSON(w, outcome)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) Outcome {
	ctx := r.Context()
	logger := LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		return InvalidMethod()
	}

	if declared := declaredOrigin(r); !h.origin.Allow(declared) {
		logger.Warn("rejected submission origin", "origin", declared)
		return InvalidOrigin()
	}

	sid := sessionID(w, r, h.cfg.SessionCookie, h.cfg.SessionTTL)
	decision, err := h.limiter.Check(ctx, sid, h.now())
	switch {
	case err != nil:
		// store errors never block a submission
		logger.Warn("rate limit check failed, allowing submission", "err", err)
	case !decision.Allowed:
		return RateLimited(decision.RetryAfter)
	}

	sub, err := h.parse(w, r)
	if err != nil {
		logger.Info("unparseable submission", "err", err)
		return ValidationFailed([]string{msgInvalidForm})
	}
	if res := h.validator.Validate(sub); !res.Valid() {
		return ValidationFailed(res.Errors)
	}

	if sub.Honeypot != "" {
		logger.Info("honeypot field filled, rejecting submission")
		return SpamDetected()
	}
	if keyword, ok := h.spam.Match(sub); ok {
		logger.Info("spam keyword in submission", "keyword", keyword)
		return SpamDetected()
	}

	submittedAt := h.now()
	msg := h.composer.Compose(sub, Envelope{
		SubmittedAt: submittedAt,
		ClientIP:    clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err := h.notifier.Send(ctx, msg); err != nil {
		return DeliveryFailed(err)
	}

	// commit only after a confirmed send
	if err := h.limiter.Commit(ctx, sid, submittedAt); err != nil {
		logger.Error("rate limit commit failed", "err", err)
	}
	logger.Info("contact form submission sent", "from", SanitizeEmail(sub.Email))
	return Accepted()
}

// parse reads form-encoded, multipart or (when enabled) JSON bodies.
func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (Submission, error) {
	maxBytes := int64(h.cfg.MaxBodyKB) * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var get func(string) string

	switch {
	case mediaType == "application/json" && h.cfg.AllowJSON:
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			return Submission{}, fmt.Errorf("bad json: %w", err)
		}
		get = func(k string) string {
			s, _ := fields[k].(string)
			return s
		}
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return Submission{}, fmt.Errorf("bad multipart form: %w", err)
		}
		get = r.PostFormValue
	case mediaType == "application/x-www-form-urlencoded", mediaType == "":
		if err := r.ParseForm(); err != nil {
			return Submission{}, fmt.Errorf("bad form: %w", err)
		}
		get = r.PostFormValue
	default:
		return Submission{}, fmt.Errorf("unsupported content type %q", mediaType)
	}

	sub := Submission{
		Name:    strings.TrimSpace(get("name")),
		Email:   strings.TrimSpace(get("email")),
		Subject: strings.TrimSpace(get("subject")),
		Message: strings.TrimSpace(get("message")),
	}
	if h.cfg.HoneypotField != "" {
		sub.Honeypot = strings.TrimSpace(get(h.cfg.HoneypotField))
	}
	return sub, nil
}

// HandleReady reports whether the session store answers.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		LoggerFromContext(ctx).Warn("session store not ready", "err", err)
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, o Outcome) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(o.Status())
	_ = json.NewEncoder(w).Encode(o.Response())
}

// clientIP expects chi's RealIP middleware to have resolved proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
