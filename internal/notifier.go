package form_mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/smtp"
	"strconv"

	"github.com/jordan-wright/email"
	pkgerrors "github.com/pkg/errors"
)

// ErrDeliveryTimeout is returned when the mail transport does not answer in time.
var ErrDeliveryTimeout = errors.New("mail delivery timed out")

// Notifier sends one message. A nil error means the transport accepted it.
type Notifier interface {
	Send(ctx context.Context, e *email.Email) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e *email.Email) error

func (f NotifierFunc) Send(ctx context.Context, e *email.Email) error {
	return f(ctx, e)
}

// SMTPNotifier delivers through an SMTP relay. With SSL set it dials TLS
// directly (port 465 style); otherwise the session upgrades with STARTTLS
// when the server offers it.
type SMTPNotifier struct {
	cfg  SmtpCfg
	addr string
	auth smtp.Auth
}

func NewSMTPNotifier(cfg SmtpCfg) *SMTPNotifier {
	n := &SMTPNotifier{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}
	if cfg.User != "" {
		n.auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}
	return n
}

// Send blocks until the relay answers, cfg.Timeout elapses or ctx is done.
// The library call has no cancellation hook, so an abandoned send finishes
// in the background.
func (n *SMTPNotifier) Send(ctx context.Context, e *email.Email) error {
	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		if n.cfg.SSL {
			done <- e.SendWithTLS(n.addr, n.auth, &tls.Config{ServerName: n.cfg.Host})
		} else {
			done <- e.Send(n.addr, n.auth)
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			return pkgerrors.WithMessage(err, "smtp send to "+n.addr)
		}
		return nil
	case <-ctx.Done():
		return pkgerrors.WithMessage(ErrDeliveryTimeout, ctx.Err().Error())
	}
}
