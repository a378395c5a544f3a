// Package server exposes the try-on controls over HTTP: asset swaps,
// background mode, the live measurement and the latest composite.
package server

import (
	"context"
	"errors"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tryon-compositor/internal/attach"
	"tryon-compositor/internal/measure"
	"tryon-compositor/internal/pipeline"
	"tryon-compositor/internal/raster"
)

// Controller is the part of the frame orchestrator the server drives.
type Controller interface {
	SetOutfit(ctx context.Context, id string) error
	SetHat(ctx context.Context, id string) error
	ClearHat() error
	SetBackground(ctx context.Context, id string) error
	ToggleBgMode(mode pipeline.Mode) (bool, error)
	Mode() pipeline.Mode
	Snapshot() attach.Snapshot
	Measurement() (measure.Result, bool)
	RequestMeasurement()
	LastFrame() *image.NRGBA
}

// BuildInfo is reported by /version.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Server is the HTTP control surface.
type Server struct {
	ctrl   Controller
	info   BuildInfo
	log    *zap.Logger
	engine *gin.Engine
}

// New builds the router. mode is a gin mode ("debug", "release", "test").
func New(ctrl Controller, info BuildInfo, mode string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if mode != "" {
		gin.SetMode(mode)
	}
	s := &Server{ctrl: ctrl, info: info, log: log}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	r.GET("/health", s.health)
	r.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, s.info) })

	api := r.Group("/api/v1")
	{
		api.GET("/state", s.state)
		api.POST("/outfit/:id", s.setOutfit)
		api.POST("/hat/:id", s.setHat)
		api.DELETE("/hat", s.clearHat)
		api.POST("/background/:id", s.setBackground)
		api.POST("/bg-mode/:mode", s.setMode)
		api.GET("/measurement", s.measurement)
		api.POST("/measurement", s.requestMeasurement)
		api.GET("/frame.webp", s.frame)
	}
	s.engine = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		<-errc
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.info.Version,
	})
}

func (s *Server) state(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) setOutfit(c *gin.Context) {
	s.swap(c, s.ctrl.SetOutfit(c.Request.Context(), c.Param("id")))
}

func (s *Server) setHat(c *gin.Context) {
	s.swap(c, s.ctrl.SetHat(c.Request.Context(), c.Param("id")))
}

func (s *Server) clearHat(c *gin.Context) {
	s.swap(c, s.ctrl.ClearHat())
}

func (s *Server) setBackground(c *gin.Context) {
	s.swap(c, s.ctrl.SetBackground(c.Request.Context(), c.Param("id")))
}

func (s *Server) setMode(c *gin.Context) {
	mode, err := pipeline.ParseMode(c.Param("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	changed, err := s.ctrl.ToggleBgMode(mode)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": s.ctrl.Mode(), "changed": changed})
}

func (s *Server) measurement(c *gin.Context) {
	r, ok := s.ctrl.Measurement()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no measurement yet"})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) requestMeasurement(c *gin.Context) {
	s.ctrl.RequestMeasurement()
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}

func (s *Server) frame(c *gin.Context) {
	img := s.ctrl.LastFrame()
	if img == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frame yet"})
		return
	}
	if q := c.Query("width"); q != "" {
		w, err := strconv.Atoi(q)
		if err != nil || w <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "width must be a positive integer"})
			return
		}
		img = preview(img, w)
	}
	c.Header("Content-Type", "image/webp")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := nativewebp.Encode(c.Writer, img, nil); err != nil {
		s.log.Warn("frame encode failed", zap.Error(err))
	}
}

// preview scales img down to width, keeping its aspect ratio. Frames already
// that narrow are returned as is.
func preview(img *image.NRGBA, width int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() <= width {
		return img
	}
	h := max(1, b.Dy()*width/b.Dx())
	return raster.ScaleNRGBA(img, width, h, false)
}

func (s *Server) swap(c *gin.Context, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, attach.ErrUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, attach.ErrNoAnchor), errors.Is(err, attach.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, attach.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusBadGateway
	}
}
