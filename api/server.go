// Package api serves the watermark gateway and the fingerprint registry over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xdao.co/origin/codec"
	"xdao.co/origin/proof"
)

// DefaultMaxUploadBytes is the upload cap when none is configured.
const DefaultMaxUploadBytes int64 = 200 << 20

type Options struct {
	Proof *proof.Service
	Codec *codec.Gateway
	// MaxUploadBytes caps request bodies; <= 0 means DefaultMaxUploadBytes.
	MaxUploadBytes int64
	// RequestTimeout bounds the work done for one request. Zero means none.
	RequestTimeout time.Duration
	// AllowOrigins defaults to every origin.
	AllowOrigins []string
	Logger       *zap.Logger
}

type Server struct {
	proof   *proof.Service
	codec   *codec.Gateway
	maxBody int64
	timeout time.Duration
	origins []string
	logger  *zap.Logger
	started time.Time
	engine  *gin.Engine
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := opts.MaxUploadBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxUploadBytes
	}
	svc := opts.Proof
	if svc == nil {
		svc = proof.NewService(proof.Options{Logger: logger})
	}
	s := &Server{
		proof:   svc,
		codec:   opts.Codec,
		maxBody: maxBody,
		timeout: opts.RequestTimeout,
		origins: opts.AllowOrigins,
		logger:  logger,
		started: time.Now(),
	}
	s.engine = s.router()
	return s
}

// Handler returns the gin engine with every route mounted.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRequestID},
		ExposeHeaders: []string{"Content-Length", headerRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(s.origins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.origins
	}

	r.Use(
		gin.Recovery(),
		requestID(),
		accessLog(s.logger),
		cors.New(corsCfg),
		bodyLimit(s.maxBody),
		requestTimeout(s.timeout),
	)

	s.mount(&r.RouterGroup)
	s.mount(r.Group("/api"))
	return r
}

func (s *Server) mount(g *gin.RouterGroup) {
	g.POST("/watermark/image", s.handleEmbed(codec.MediaImage))
	g.POST("/watermark/image/extract", s.handleExtract(codec.MediaImage))
	g.POST("/watermark/video", s.handleEmbed(codec.MediaVideo))
	g.POST("/watermark/video/extract", s.handleExtract(codec.MediaVideo))
	g.POST("/register", s.handleRegister)
	g.POST("/verify", s.handleVerify)
	g.GET("/records/:digest", s.handleRecord)
	g.GET("/status", s.handleStatus)
}

// ListenAndServe serves until ctx is canceled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
