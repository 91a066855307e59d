// Package http exposes the pipeline executor over plain HTTP and SSE
// (§6 "Client streaming API (remote)"): session creation from a manifest
// document, POST-delivered input frames, and Server-Sent Events streams
// for lifecycle events and output frames. Grounded on the teacher's gin
// router conventions and its healthcheck router. All routes hang off one
// Server at the root, with no versioned prefix: /healthz (a single health
// check, no separate readiness route), /metrics, /metrics/latency and
// /sessions.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/executor"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/latencymetrics"
	"github.com/rapidaai/runtime/internal/manifest"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP transport surface: one gin.Engine bound to one node
// registry and one process-wide latency metrics registry, holding every
// live session by id.
type Server struct {
	cfg     *config.AppConfig
	reg     *registry.Registry
	logger  commons.Logger
	metrics *latencymetrics.Registry
	nowUs   func() uint64

	engine *gin.Engine

	mu       sync.Mutex
	sessions map[string]*executor.Session
}

// NewServer builds the HTTP transport. /metrics always serves only the
// process-level prometheus collectors registered via promhttp; the
// windowed latency text is served on /metrics/latency, a route that is
// registered only when metrics is non-nil.
func NewServer(cfg *config.AppConfig, reg *registry.Registry, metrics *latencymetrics.Registry, logger commons.Logger, nowUs func() uint64) *Server {
	if gin.Mode() != gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:      cfg,
		reg:      reg,
		logger:   logger,
		metrics:  metrics,
		nowUs:    nowUs,
		engine:   gin.New(),
		sessions: make(map[string]*executor.Session),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(cors.Default())
	s.routes()
	return s
}

// Engine returns the underlying gin.Engine, e.g. for http.ListenAndServe.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/healthz", s.healthz)
	if s.metrics != nil {
		s.engine.GET("/metrics/latency", s.latencyMetrics)
	}
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sessions := s.engine.Group("/sessions")
	{
		sessions.POST("", s.createSession)
		sessions.POST("/:id/input", s.sendInput)
		sessions.GET("/:id/output", s.streamOutput)
		sessions.GET("/:id/events", s.streamEvents)
		sessions.POST("/:id/close", s.closeSession)
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": s.cfg.Name, "version": s.cfg.Version})
}

func (s *Server) latencyMetrics(c *gin.Context) {
	c.String(http.StatusOK, s.metrics.ExportPrometheus())
}

// createSessionRequest carries a manifest document in either wire form;
// at least one of ManifestYAML or ManifestJSON must be set, and when both
// are, ManifestJSON is used.
type createSessionRequest struct {
	ManifestYAML string          `json:"manifest_yaml"`
	ManifestJSON json.RawMessage `json:"manifest_json"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var m *manifest.Manifest
	var err error
	switch {
	case len(req.ManifestJSON) > 0:
		m, err = manifest.ParseJSON(req.ManifestJSON)
	case req.ManifestYAML != "":
		m, err = manifest.ParseYAML([]byte(req.ManifestYAML))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "one of manifest_yaml or manifest_json is required"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	sess, err := executor.NewSession(id, m, s.reg, s.cfg.Executor, s.logger.With("session_id", id), s.nowUs)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err := sess.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"session_id": id, "state": sess.State().String()})
}

func (s *Server) lookupSession(c *gin.Context) (*executor.Session, bool) {
	id := c.Param("id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session " + id})
	}
	return sess, ok
}

// inputFrameRequest is the HTTP-facing shape of a frame destined for an
// entry node; the full Frame union is reduced to the variants a remote
// client can reasonably encode as JSON (text and JSON payloads; control
// frames are not accepted here).
type inputFrameRequest struct {
	NodeID   string         `json:"node_id" binding:"required"`
	StreamID string         `json:"stream_id"`
	Text     string         `json:"text"`
	JSON     map[string]any `json:"json"`
}

func (s *Server) sendInput(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}
	var req inputFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := frame.Frame{StreamID: req.StreamID}
	switch {
	case req.JSON != nil:
		f.Variant = frame.VariantJSON
		f.JSON = req.JSON
	default:
		f.Variant = frame.VariantText
		f.Text = req.Text
	}

	if err := sess.SendInput(c.Request.Context(), req.NodeID, f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

// streamOutput drains Session.RecvOutput as an SSE stream of JSON-encoded
// output frames until the session's output is exhausted or the client
// disconnects.
func (s *Server) streamOutput(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		f, err := sess.RecvOutput(ctx)
		if err != nil {
			return false
		}
		c.SSEvent("frame", outputFrameView(f))
		return true
	})
}

// outputFrameView reduces a Frame to a JSON-friendly shape for SSE
// delivery; binary payloads (audio/video/tensor/numpy) are summarized by
// size rather than base64-inlined, since this surface targets text/control
// pipelines — binary-heavy graphs are expected to use the WebRTC or gRPC
// transports instead.
func outputFrameView(f frame.Frame) gin.H {
	view := gin.H{
		"variant":   f.Variant.String(),
		"stream_id": f.StreamID,
	}
	switch f.Variant {
	case frame.VariantText:
		view["text"] = f.Text
	case frame.VariantJSON:
		view["json"] = f.JSON
	case frame.VariantControl:
		if f.Control != nil {
			view["control_kind"] = f.Control.Kind
		}
	case frame.VariantAudio:
		if f.Audio != nil {
			view["frames"] = f.Audio.Frames
			view["sample_rate"] = f.Audio.SampleRate
		}
	case frame.VariantVideo:
		if f.Video != nil {
			view["width"] = f.Video.Width
			view["height"] = f.Video.Height
			view["bytes"] = len(f.Video.PixelData)
		}
	}
	return view
}

// streamEvents relays Session.Subscribe's lifecycle channel as SSE,
// matching §9's supplemented JSON event envelope: {type, session_id,
// ts_us, data}.
func (s *Server) streamEvents(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}
	events := sess.Subscribe()
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("lifecycle", gin.H{
				"type":       ev.Type,
				"session_id": ev.SessionID,
				"ts_us":      ev.AtUs,
				"data":       ev.Data,
			})
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (s *Server) closeSession(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	delete(s.sessions, c.Param("id"))
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}
