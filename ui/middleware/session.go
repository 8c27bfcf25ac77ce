package middleware

import (
	"log"
	"net/http"
	"time"

	"biomark/domain/core"
	"biomark/models"
	"biomark/ports"

	"github.com/gin-gonic/gin"
)

const sessionKey = "biomark.session"

// SessionOptions configures the session cookie
type SessionOptions struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// EnsureSession loads the session named by the cookie, creating a fresh one
// when the cookie is missing, malformed or refers to an expired session
func EnsureSession(repo ports.SessionRepository, opts SessionOptions) gin.HandlerFunc {
	maxAge := int(opts.TTL / time.Second)
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var sess *models.Session
		if raw, err := c.Cookie(opts.CookieName); err == nil {
			if id, err := core.ParseSessionID(raw); err == nil {
				sess, err = repo.GetSession(ctx, id)
				if err != nil {
					log.Printf("[EnsureSession] session %s not available, starting a new one", id)
				}
			}
		}

		if sess == nil {
			created, err := repo.CreateSession(ctx)
			if err != nil {
				log.Printf("[EnsureSession] Failed to create session: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable", "code": "INTERNAL_ERROR"})
				return
			}
			sess = created
			log.Printf("[EnsureSession] Created session %s", sess.ID)
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(opts.CookieName, sess.ID.String(), maxAge, "/", "", opts.Secure, true)
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// CurrentSession returns the session attached by EnsureSession
func CurrentSession(c *gin.Context) *models.Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(*models.Session); ok {
			return sess
		}
	}
	return nil
}

// ForgetSession expires the session cookie
func ForgetSession(c *gin.Context, opts SessionOptions) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(opts.CookieName, "", -1, "/", "", opts.Secure, true)
}
