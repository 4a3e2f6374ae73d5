package httpserver

import (
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"resumeassist/internal/engagement"
)

// debugOnly hides the debug routes unless the current settings enable
// them. The check runs per request so a config reload takes effect.
func (s *Server) debugOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.pages == nil || !s.pages.Settings().Debug {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Next()
	}
}

func (s *Server) handleDebugReset(c *gin.Context) {
	store := s.pages.Decisions(c.GetString(ctxProfile), c.GetString(ctxSession))
	msg := engagement.NewDebugCommands(store, nil, s.pages.Settings().DwellDelay, s.log).Reset(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) handleDebugTrigger(c *gin.Context) {
	override, _ := strconv.ParseBool(c.Query("override"))
	rt := runtimeOf(c)
	dbg := rt.Debug()
	if dbg == nil {
		// Page opened before debug was switched on.
		dbg = engagement.NewDebugCommands(rt.Store(), rt.Bus(), rt.Settings().DwellDelay, s.log)
	}
	c.JSON(http.StatusOK, gin.H{"message": dbg.Trigger(override), "visible": rt.Coordinator().Visible()})
}

// handlePprof serves net/http/pprof under /debug/pprof/.
func (s *Server) handlePprof(c *gin.Context) {
	switch strings.TrimPrefix(c.Param("name"), "/") {
	case "cmdline":
		hpprof.Cmdline(c.Writer, c.Request)
	case "profile":
		hpprof.Profile(c.Writer, c.Request)
	case "symbol":
		hpprof.Symbol(c.Writer, c.Request)
	case "trace":
		hpprof.Trace(c.Writer, c.Request)
	default:
		// POST /debug/pprof/symbol has no :name param.
		if c.Request.Method == http.MethodPost {
			hpprof.Symbol(c.Writer, c.Request)
			return
		}
		hpprof.Index(c.Writer, c.Request)
	}
}
