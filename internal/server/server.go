package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/iaaps/internal/assistant"
	"github.com/smallbiznis/iaaps/internal/config"
	dashboarddomain "github.com/smallbiznis/iaaps/internal/dashboard/domain"
	"github.com/smallbiznis/iaaps/internal/observability"
	obsmiddleware "github.com/smallbiznis/iaaps/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/iaaps/internal/observability/metrics"
	obstracing "github.com/smallbiznis/iaaps/internal/observability/tracing"
	"github.com/smallbiznis/iaaps/internal/ratelimit"
	"github.com/smallbiznis/iaaps/internal/report"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const publicDir = "./public"

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	dashboardSvc dashboarddomain.Service
	reportSvc    *report.Service
	assistantSvc *assistant.Service
	limiter      *ratelimit.Limiter
	log          *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DashboardSvc dashboarddomain.Service
	ReportSvc    *report.Service
	AssistantSvc *assistant.Service
	Log          *zap.Logger
	Limiter      *ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		dashboardSvc: p.DashboardSvc,
		reportSvc:    p.ReportSvc,
		assistantSvc: p.AssistantSvc,
		limiter:      p.Limiter,
		log:          p.Log.Named("http.server"),
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	dashboard := api.Group("/dashboard")
	{
		dashboard.GET("/summary", s.GetSummary)
		dashboard.POST("/refresh", s.RateLimit("refresh"), s.RefreshDashboard)
	}

	indicators := api.Group("/indicators")
	{
		indicators.GET("", s.ListIndicators)
		indicators.GET("/:code", s.GetIndicator)
	}

	centers := api.Group("/centers")
	{
		centers.GET("", s.ListCenters)
		centers.GET("/:code", s.GetCenter)
	}

	reports := api.Group("/reports", s.RateLimit("reports"))
	{
		reports.GET("/pdf", s.DownloadPDFReport)
		reports.GET("/xlsx", s.DownloadXLSXReport)
	}

	api.POST("/assistant/query", s.RateLimit("assistant"), s.AssistantQuery)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			AbortWithError(c, ErrNotFound)
			return
		}

		// static dashboard assets
		if fileExists(publicDir, c.Request.URL.Path) {
			c.File(filepath.Join(publicDir, filepath.Clean(c.Request.URL.Path)))
			return
		}
		if fileExists(publicDir, "/index.html") {
			c.File(filepath.Join(publicDir, "index.html"))
			return
		}
		AbortWithError(c, ErrNotFound)
	})
}

func fileExists(dir, reqPath string) bool {
	clean := filepath.Clean(reqPath)

	// prevent path traversal
	if clean == "." || clean == "/" || clean == ".." || strings.Contains(clean, "..") {
		return false
	}

	info, err := os.Stat(filepath.Join(dir, clean))
	if err != nil {
		return false
	}

	return !info.IsDir()
}
