package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	logx "resumeassist/pkg/logx"
)

const (
	maxUploadBytes   = 32 << 20
	maxProxyBody     = 1 << 20
	maxUpstreamBytes = 8 << 20
)

// Client-facing messages; details go to the log.
const (
	errProxyFailed  = "Failed to fetch from backend API"
	errUploadFailed = "File upload failed"
	errServer       = "Server error, please try again later"
	errUnauthorized = "Unauthorized"
)

func (s *Server) backendURL(path, rawQuery string) string {
	u := *s.cfg.Backend
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = rawQuery
	return u.String()
}

// handleUpload forwards the multipart body unchanged to <backend>/api/upload.
func (s *Server) handleUpload(c *gin.Context) {
	if s.cfg.Backend == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errUploadFailed})
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, s.backendURL("/api/upload", ""), body)
	if err != nil {
		s.fail(c, errUploadFailed, err)
		return
	}
	req.Header.Set("Content-Type", c.GetHeader("Content-Type"))
	req.ContentLength = c.Request.ContentLength

	status, data, err := s.roundTrip(req)
	if err != nil {
		s.fail(c, errUploadFailed, err)
		return
	}
	if status < 200 || status > 299 {
		s.fail(c, errUploadFailed, fmt.Errorf("backend status %d: %s", status, truncate(data, 200)))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// handleProxy forwards GET (with query) and JSON POST to <backend>/api/<path>.
func (s *Server) handleProxy(c *gin.Context) {
	s.forward(c, "/api/"+strings.TrimPrefix(c.Param("path"), "/"), errProxyFailed)
}

// handleRegister forwards sign-up requests to <backend>/api/auth/register.
func (s *Server) handleRegister(c *gin.Context) {
	s.forward(c, "/api/auth/register", errServer)
}

// handleProfile forwards to <backend>/api/user/profile. Requests without
// credentials are refused here.
func (s *Server) handleProfile(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
		return
	}
	s.forward(c, "/api/user/profile", errServer)
}

// forward relays the request to path on the backend and passes the
// upstream status through. Transport errors and non-JSON replies become
// 500 with public as the message.
func (s *Server) forward(c *gin.Context, path, public string) {
	if s.cfg.Backend == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": public})
		return
	}

	var (
		body     io.Reader
		rawQuery string
	)
	if c.Request.Method == http.MethodPost {
		b, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBody+1))
		if err != nil || len(b) > maxProxyBody || !json.Valid(b) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be JSON"})
			return
		}
		body = bytes.NewReader(b)
	} else {
		rawQuery = c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, s.backendURL(path, rawQuery), body)
	if err != nil {
		s.fail(c, public, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := c.GetHeader("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	status, data, err := s.roundTrip(req)
	if err != nil {
		s.fail(c, public, err)
		return
	}
	if !json.Valid(data) {
		s.fail(c, public, fmt.Errorf("backend returned non-JSON (status %d)", status))
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

func (s *Server) roundTrip(req *http.Request) (int, []byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBytes))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

func (s *Server) fail(c *gin.Context, public string, err error) {
	s.log.Warn("backend request failed",
		logx.String("path", c.Request.URL.Path),
		logx.String("backend", redactURL(s.cfg.Backend)),
		logx.Err(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": public})
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
