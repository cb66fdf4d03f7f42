package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/playden/playden/internal/audit/domain"
	catalogdomain "github.com/playden/playden/internal/catalog/domain"
	"github.com/playden/playden/internal/config"
	customerdomain "github.com/playden/playden/internal/customer/domain"
	"github.com/playden/playden/internal/observability"
	obsmiddleware "github.com/playden/playden/internal/observability/logger"
	obsmetrics "github.com/playden/playden/internal/observability/metrics"
	obstracing "github.com/playden/playden/internal/observability/tracing"
	sessiondomain "github.com/playden/playden/internal/session/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	sessionSvc  sessiondomain.Service
	customerSvc customerdomain.Service
	catalogSvc  catalogdomain.Service
	auditSvc    auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	SessionSvc  sessiondomain.Service
	CustomerSvc customerdomain.Service
	CatalogSvc  catalogdomain.Service
	AuditSvc    auditdomain.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		sessionSvc:  p.SessionSvc,
		customerSvc: p.CustomerSvc,
		catalogSvc:  p.CatalogSvc,
		auditSvc:    p.AuditSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Sessions --------
	v1.POST("/sessions", s.StartSession)
	v1.GET("/sessions", s.ListSessions)
	v1.GET("/sessions/:id", s.GetSessionByID)
	v1.GET("/sessions/:id/live", s.GetSessionLiveView)
	v1.POST("/sessions/:id/end", s.EndSession)
	v1.DELETE("/sessions/:id", s.CancelSession)

	// -------- Session services --------
	v1.POST("/sessions/:id/services", s.AddSessionService)
	v1.POST("/sessions/:id/services/:service_id/pause", s.PauseSessionService)
	v1.POST("/sessions/:id/services/:service_id/resume", s.ResumeSessionService)
	v1.PATCH("/sessions/:id/services/:service_id", s.EditSessionService)
	v1.DELETE("/sessions/:id/services/:service_id", s.RemoveSessionService)

	// -------- Customers --------
	v1.GET("/customers", s.ListCustomers)
	v1.POST("/customers", s.CreateCustomer)
	v1.GET("/customers/:id", s.GetCustomerByID)

	// -------- Catalog --------
	v1.GET("/catalog/services", s.ListCatalogServices)
	v1.POST("/catalog/services", s.CreateCatalogService)
	v1.GET("/catalog/services/:id", s.GetCatalogServiceByID)
	v1.PATCH("/catalog/services/:id", s.UpdateCatalogService)
	v1.DELETE("/catalog/services/:id", s.DeleteCatalogService)

	// -------- Dashboard --------
	v1.GET("/dashboard/revenue", s.DailyRevenue)
	v1.GET("/audit_logs", s.ListAuditLogs)
}
