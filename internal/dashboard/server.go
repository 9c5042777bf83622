package dashboard

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fundingwatch/config"
	"fundingwatch/internal/metrics"
	"fundingwatch/internal/model"
	"fundingwatch/internal/presenter"
	"fundingwatch/logger"
)

//go:embed templates/*.tmpl assets/*
var embeddedFS embed.FS

// Driver is the part of the refresh driver the dashboard depends on.
type Driver interface {
	Last() model.LastResult
	Trigger() bool
	Refreshing() bool
	Subscribe() (<-chan model.LastResult, func())
}

// Server hosts the gin-powered funding rate dashboard.
type Server struct {
	cfg           config.DashboardConfig
	driver        Driver
	log           *logger.Log
	metricStore   *metricStore
	logStore      *logStore
	metricHandler metrics.MetricHandlerID
	httpServer    *http.Server
}

// NewServer constructs a dashboard server when the dashboard feature is enabled.
// When the dashboard is disabled the returned server will be nil.
func NewServer(cfg config.DashboardConfig, driver Driver, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if driver == nil {
		return nil, errors.New("dashboard requires a refresh driver")
	}

	cfg.Address = normalizeAddress(cfg.Address)

	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}

	metricStore := newMetricStore(cfg.LogHistory)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:           cfg,
		driver:        driver,
		log:           log,
		metricStore:   metricStore,
		logStore:      logStore,
		metricHandler: handlerID,
	}, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context is
// cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl := template.Must(template.New("dashboard").Funcs(template.FuncMap{
		"seconds": func(ms int64) int64 { return ms / 1000 },
	}).ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	if assetsFS, err := fsSub("assets"); err == nil {
		router.StaticFS("/assets", http.FS(assetsFS))
	}

	router.GET("/", func(c *gin.Context) {
		view := presenter.BuildView(s.driver.Last())
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"View":              view,
			"RefreshIntervalMs": view.IntervalMs,
		})
	})

	router.GET("/api/rates", func(c *gin.Context) {
		c.JSON(http.StatusOK, presenter.BuildView(s.driver.Last()))
	})

	router.POST("/api/refresh", func(c *gin.Context) {
		queued := s.driver.Trigger()
		s.log.WithComponent("dashboard").WithFields(logger.Fields{
			"queued": queued,
		}).Info("manual refresh requested")
		c.JSON(http.StatusAccepted, gin.H{
			"queued":     queued,
			"refreshing": s.driver.Refreshing(),
		})
	})

	router.GET("/ws", s.serveWS)

	router.GET("/api/metrics", func(c *gin.Context) {
		metricsSnapshot := s.metricStore.snapshot(c.Query("component"), queryInt(c, "limit"))
		payload := make([]gin.H, 0, len(metricsSnapshot))
		for _, m := range metricsSnapshot {
			payload = append(payload, gin.H{
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"component": m.Component,
				"name":      m.Name,
				"value":     m.Value,
				"type":      m.Type,
				"fields":    m.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"metrics": payload})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		minLevel := logrus.TraceLevel
		if raw := c.Query("level"); raw != "" {
			lvl, err := logrus.ParseLevel(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			minLevel = lvl
		}
		logsSnapshot := s.logStore.snapshot(minLevel, queryInt(c, "limit"))
		payload := make([]gin.H, 0, len(logsSnapshot))
		for _, l := range logsSnapshot {
			payload = append(payload, gin.H{
				"timestamp": l.Timestamp.Format(time.RFC3339Nano),
				"level":     l.Level.String(),
				"component": l.Component,
				"message":   l.Message,
				"fields":    l.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"logs": payload})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router, nil
}

// queryInt reads a non-negative integer query parameter; anything else is 0.
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func fsSub(path string) (fs.FS, error) {
	sub, err := fs.Sub(embeddedFS, path)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
