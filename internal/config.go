package form_mailer

import (
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/contactgate/contactgate/env"
)

/*
ENV-ONLY CONFIG (a .env file in the working directory is loaded first, real
environment variables win):
  Required:
    CONTACT_EMAIL                 recipient of every submission
    SMTP_HOST
  Optional:
    LISTEN_ADDR (default ":3000")
    SUBMIT_PATH (default "/submit-form")
    SITE_NAME (default "Contact Form")
    FROM_ADDR (default SMTP_USER, then CONTACT_EMAIL)
    SMTP_PORT (default 587), SMTP_USER, SMTP_PASS, SMTP_SSL (default false)
    SMTP_TIMEOUT_SECONDS (default 10)
    RATE_LIMIT_SECONDS (default 60)
    ALLOWED_HOSTS="example.com,www.example.com" (default "localhost")
    SPAM_KEYWORDS="viagra,casino" (default built-in list)
    SESSION_COOKIE (default "contact_session")
    SESSION_TTL_MINUTES (default 1440)
    REDIS_URL                     redis://... ; in-memory sessions when empty
    MAX_BODY_KB (default 64)
    ALLOW_JSON (default "true")
    HONEYPOT_FIELD (default "website"; "-" disables it)
*/

var defaultSpamKeywords = []string{"viagra", "cialis", "casino", "lottery", "winner", "congratulations"}

type SmtpCfg struct {
	Host    string
	Port    int
	User    string
	Pass    string
	SSL     bool
	Timeout time.Duration
}

type Config struct {
	ListenAddr string
	SubmitPath string

	SiteName string
	To       string
	FromAddr string
	SMTP     SmtpCfg

	RateWindow    time.Duration
	AllowedHosts  []string
	SpamKeywords  []string
	HoneypotField string

	SessionCookie string
	SessionTTL    time.Duration
	RedisURL      string

	MaxBodyKB int
	AllowJSON bool
}

// LoadConfig reads the configuration once at process start.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var r env.Reader
	to := r.Required("CONTACT_EMAIL")
	smtpCfg := SmtpCfg{
		Host:    r.Required("SMTP_HOST"),
		Port:    r.PositiveInt("SMTP_PORT", 587),
		User:    r.String("SMTP_USER", ""),
		Pass:    r.String("SMTP_PASS", ""),
		SSL:     r.Bool("SMTP_SSL", false),
		Timeout: time.Duration(r.PositiveInt("SMTP_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	from := r.String("FROM_ADDR", "")
	if from == "" {
		from = smtpCfg.User
	}
	if from == "" {
		from = to
	}

	honeypot := r.String("HONEYPOT_FIELD", "website")
	if honeypot == "-" {
		honeypot = ""
	}

	cfg := &Config{
		ListenAddr:    r.String("LISTEN_ADDR", ":3000"),
		SubmitPath:    r.String("SUBMIT_PATH", "/submit-form"),
		SiteName:      r.String("SITE_NAME", "Contact Form"),
		To:            to,
		FromAddr:      from,
		SMTP:          smtpCfg,
		RateWindow:    time.Duration(r.PositiveInt("RATE_LIMIT_SECONDS", 60)) * time.Second,
		AllowedHosts:  r.List("ALLOWED_HOSTS", []string{"localhost"}),
		SpamKeywords:  lowerAll(r.List("SPAM_KEYWORDS", defaultSpamKeywords)),
		HoneypotField: honeypot,
		SessionCookie: r.String("SESSION_COOKIE", "contact_session"),
		SessionTTL:    time.Duration(r.PositiveInt("SESSION_TTL_MINUTES", 24*60)) * time.Minute,
		RedisURL:      r.String("REDIS_URL", ""),
		MaxBodyKB:     r.PositiveInt("MAX_BODY_KB", 64),
		AllowJSON:     r.Bool("ALLOW_JSON", true),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
