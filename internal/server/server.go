package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"paretodesk/internal/config"
	"paretodesk/internal/design"
	"paretodesk/internal/material"
	"paretodesk/internal/optimizer"
	"paretodesk/internal/orchestrator"
	"paretodesk/internal/selection"
	"paretodesk/internal/types"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Router *gin.Engine
	hub    *Hub
	orch   *orchestrator.Engine
	cfg    config.Config
	log    *slog.Logger
}

func NewServer(cfg config.Config, client orchestrator.Optimizer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hub := NewHub(logger)
	go hub.run()

	s := &Server{
		hub:  hub,
		orch: orchestrator.NewEngine(client, material.Default(), hub.broadcastJSON, logger),
		cfg:  cfg,
		log:  logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), cors.New(corsConfig(cfg.CORSOrigins)))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.handleWS)

	api := r.Group("/api")
	{
		api.POST("/optimize", s.handleOptimize)
		api.POST("/demo", s.handleDemo)
		api.GET("/designs", s.handleDesigns)
		api.GET("/designs/:id/download", s.handleDownload)
		api.GET("/download", s.handleDownload)
		api.POST("/select", s.handleSelect)
		api.POST("/comparison/toggle", s.handleToggle)
		api.GET("/selection", s.handleSelection)
		api.POST("/advisor", s.handleAdvisor)
		api.GET("/materials", s.handleMaterials)
		api.GET("/status", s.handleStatus)
	}

	s.Router = r
	return s
}

// Close stops the websocket hub.
func (s *Server) Close() {
	s.hub.Stop()
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleWS(c *gin.Context) {
	serveWS(s.hub, c.Writer, c.Request, s.handleClientMessage)
}

// handleClientMessage applies an inbound frame from a rendering surface.
// The resulting notifications go out through the hub.
func (s *Server) handleClientMessage(_ *Client, raw []byte) {
	var msg types.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Debug("ignoring malformed ws message", "error", err)
		return
	}
	switch msg.Type {
	case types.MessageActivate:
		if msg.DesignID == nil {
			s.log.Debug("ignoring activation without design_id")
			return
		}
		s.orch.Activate(selection.Activation{DesignID: *msg.DesignID, CompareRequested: msg.CompareRequested})
	case types.MessageToggleComparison:
		s.orch.ToggleComparison()
	default:
		s.log.Debug("ignoring unknown ws message", "type", msg.Type)
	}
}

func (s *Server) handleOptimize(c *gin.Context) {
	var req types.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if c.Query("wait") == "true" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.OptimizerTimeout)
		defer cancel()
		cat, err := s.orch.Optimize(ctx, req)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, types.CatalogView{Meta: cat.Meta, Designs: cat.Designs()})
		return
	}

	started, err := s.orch.StartOptimize(req, s.cfg.OptimizerTimeout)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "request": started})
}

func (s *Server) handleDemo(c *gin.Context) {
	cat, err := s.orch.Demo(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, types.CatalogView{Meta: cat.Meta, Designs: cat.Designs()})
}

func (s *Server) handleDesigns(c *gin.Context) {
	view, err := s.orch.Catalog()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleSelect(c *gin.Context) {
	var req types.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "design_id is required"})
		return
	}
	snap, applied := s.orch.Activate(selection.Activation{DesignID: *req.DesignID, CompareRequested: req.CompareRequested})
	c.JSON(http.StatusOK, gin.H{"applied": applied, "selection": snap})
}

func (s *Server) handleToggle(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.ToggleComparison())
}

func (s *Server) handleSelection(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Selection())
}

func (s *Server) handleAdvisor(c *gin.Context) {
	var q material.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	advice, err := s.orch.Advise(q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, advice)
}

func (s *Server) handleMaterials(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"materials": s.orch.Materials()})
}

func (s *Server) handleDownload(c *gin.Context) {
	var id *int
	if raw := c.Param("id"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "design id must be an integer"})
			return
		}
		id = &n
	}
	asset, err := s.orch.Download(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer asset.Body.Close()
	c.DataFromReader(http.StatusOK, -1, asset.ContentType, asset.Body, map[string]string{
		"Content-Disposition": `attachment; filename="` + asset.Filename + `"`,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.orch.Status()
	st.OptimizerURL = s.cfg.OptimizerURL
	c.JSON(http.StatusOK, st)
}

// fail maps session errors onto HTTP responses.
func (s *Server) fail(c *gin.Context, err error) {
	var verr *material.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrNoDesignSelected):
		c.JSON(http.StatusBadRequest, gin.H{"error": "select a design before downloading"})
	case errors.Is(err, orchestrator.ErrNoCatalog), errors.Is(err, orchestrator.ErrUnknownDesign):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "optimizer timed out"})
	case errors.Is(err, optimizer.ErrService), errors.Is(err, design.ErrInvalidCatalog):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
