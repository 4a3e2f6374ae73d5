package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"resumeassist/internal/engagement"
	"resumeassist/internal/eventbus"
	logx "resumeassist/pkg/logx"
)

const (
	streamBuffer    = 16
	streamKeepalive = 25 * time.Second
)

type streamEvent struct {
	name string
	data any
}

type promptState struct {
	Visible bool              `json:"visible"`
	Source  engagement.Source `json:"source,omitempty"`
	Route   string            `json:"route,omitempty"`
}

// streamPresenter turns Show and Hide into SSE events. Sends never block
// the coordinator; a client that stops reading loses events.
type streamPresenter struct {
	mu     sync.Mutex
	ch     chan streamEvent
	closed bool
	log    logx.Logger
}

func newStreamPresenter(log logx.Logger) *streamPresenter {
	return &streamPresenter{ch: make(chan streamEvent, streamBuffer), log: log}
}

func (p *streamPresenter) Show(pr engagement.Prompt) {
	p.send(streamEvent{"prompt", promptState{Visible: true, Source: pr.Source, Route: pr.Route}})
}

func (p *streamPresenter) Hide() {
	p.send(streamEvent{"prompt", promptState{Visible: false}})
}

func (p *streamPresenter) send(ev streamEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- ev:
	default:
		p.log.Warn("stream event dropped; client not reading", logx.String("event", ev.name))
	}
}

func (p *streamPresenter) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// handleStream opens a page runtime for the lifetime of the request.
//
// Query: route (default "/"), perm and display (browser capabilities),
// and engagement.ForceMarker to force an early prompt.
func (s *Server) handleStream(c *gin.Context) {
	q := c.Request.URL.Query()
	route := q.Get("route")
	if route == "" {
		route = "/"
	}
	_, force := q[engagement.ForceMarker]

	pres := newStreamPresenter(s.log)
	defer pres.close()
	rt, err := s.pages.Open(engagement.PageOptions{
		Profile: c.GetString(ctxProfile),
		Session: c.GetString(ctxSession),
		Capabilities: engagement.Capabilities{
			Permission:  q.Get("perm"),
			DisplayMode: q.Get("display"),
		},
		ForceDisplay: force,
	}, pres)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engagement.ErrPageLimit) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	defer s.pages.Close(rt.ID())

	ctx := c.Request.Context()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("ready", gin.H{"page": rt.ID()})
	c.Writer.Flush()

	// Debug pages also see raw bus traffic.
	var tap <-chan eventbus.Event
	if s.pages.Settings().Debug {
		var untap func()
		tap, untap = rt.Bus().Tap(streamBuffer)
		defer untap()
	}

	rt.Mount(ctx, route)

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("stream closed by client", logx.String("page", rt.ID()))
			return
		case ev := <-pres.ch:
			c.SSEvent(ev.name, ev.data)
		case ev, ok := <-tap:
			if !ok {
				tap = nil
				continue
			}
			c.SSEvent("bus", gin.H{"type": ev.Type, "time": ev.Time, "data": ev.Data})
		case <-keepalive.C:
			c.SSEvent("ping", gin.H{})
		}
		c.Writer.Flush()
	}
}

type routeRequest struct {
	Route string `json:"route"`
}

func bindRoute(c *gin.Context) (string, bool) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Route) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"route\": \"/path\"}"})
		return "", false
	}
	return req.Route, true
}

func (s *Server) handleMount(c *gin.Context) {
	route, ok := bindRoute(c)
	if !ok {
		return
	}
	rt := runtimeOf(c)
	// The watcher outlives this request; only the heuristic runs under it.
	w := rt.Mount(context.WithoutCancel(c.Request.Context()), route)
	state := engagement.WatcherCancelled
	if w != nil {
		state = w.State()
	}
	c.JSON(http.StatusOK, gin.H{"route": route, "state": state.String()})
}

func (s *Server) handleUnmount(c *gin.Context) {
	route, ok := bindRoute(c)
	if !ok {
		return
	}
	runtimeOf(c).Unmount(route)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSnooze(c *gin.Context) {
	if !runtimeOf(c).Coordinator().TemporaryClose() {
		c.JSON(http.StatusConflict, gin.H{"error": "prompt is not visible"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDismiss(c *gin.Context) {
	runtimeOf(c).Coordinator().PermanentClose(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (s *Server) handleConfirm(c *gin.Context) {
	runtimeOf(c).Coordinator().ConfirmBookmarked(c.Request.Context())
	c.Status(http.StatusNoContent)
}
