package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"resumeassist/internal/engagement"
)

const (
	profileCookie = "ra_profile"
	sessionCookie = "ra_session"

	profileMaxAge = 400 * 24 * 60 * 60

	ctxProfile = "ra.profile"
	ctxSession = "ra.session"
	ctxRuntime = "ra.runtime"
)

// identity assigns the visitor's profile id (long-lived) and browser
// session id (cookie without expiry). Decisions are keyed by profile;
// "prompted this session" compares against the session id.
func (s *Server) identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile := s.cookie(c, profileCookie, profileMaxAge)
		session := s.cookie(c, sessionCookie, 0)
		c.Set(ctxProfile, profile)
		c.Set(ctxSession, session)
		c.Next()
	}
}

func (s *Server) cookie(c *gin.Context, name string, maxAge int) string {
	if v, err := c.Cookie(name); err == nil {
		if _, perr := uuid.Parse(v); perr == nil {
			return v
		}
	}
	v := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, v, maxAge, "/", "", s.cfg.SecureCookies, true)
	return v
}

// pageOwner loads the runtime named by :page. Pages owned by another
// profile look the same as missing ones.
func (s *Server) pageOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		rt, err := s.pages.Get(c.Param("page"))
		if err != nil || rt.Store().Profile() != c.GetString(ctxProfile) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": engagement.ErrPageNotFound.Error()})
			return
		}
		c.Set(ctxRuntime, rt)
		c.Next()
	}
}

func runtimeOf(c *gin.Context) *engagement.Runtime {
	return c.MustGet(ctxRuntime).(*engagement.Runtime)
}
