package form_mailer

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// sessionID returns the client's session id from its cookie, minting a new
// one (and setting the cookie) when it is missing or malformed.
func sessionID(w http.ResponseWriter, r *http.Request, name string, ttl time.Duration) string {
	if c, err := r.Cookie(name); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
