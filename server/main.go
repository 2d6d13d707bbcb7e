package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/cache"
	"github.com/EVTKSU/ROB-Autonomous/server/camera"
	"github.com/EVTKSU/ROB-Autonomous/server/config"
	"github.com/EVTKSU/ROB-Autonomous/server/control"
	"github.com/EVTKSU/ROB-Autonomous/server/faults"
	"github.com/EVTKSU/ROB-Autonomous/server/handlers"
	"github.com/EVTKSU/ROB-Autonomous/server/middleware"
	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"github.com/EVTKSU/ROB-Autonomous/server/netsetup"
	"github.com/EVTKSU/ROB-Autonomous/server/processor"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "track-follower"

type Server struct {
	config         *config.Config
	logger         *zap.Logger
	queue          *processor.FrameQueue
	frameProcessor *processor.FrameProcessor
	mailbox        *control.Mailbox
	sender         *control.Sender
	receiver       *control.Receiver
	camera         *camera.Device
	peers          *cache.PeerCache
	hub            *handlers.TelemetryHub
	rateLimiter    *middleware.RateLimiter
	httpServer     *http.Server
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start", zap.Stringer("fault", faults.KindOf(err)), zap.Error(err))
	}

	if err := server.Run(ctx); err != nil {
		logger.Error("Stopped with error", zap.Stringer("fault", faults.KindOf(err)), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("Server exited")
}

// NewServer acquires every resource the loops need. Any failure releases
// what was already acquired and is returned unchanged.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if err := netsetup.NewProvisioner(cfg.Network, logger).Apply(); err != nil {
		return nil, err
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		mailbox: control.NewMailbox(),
		queue:   processor.NewFrameQueue(cfg.Camera.QueueDepth),
		peers:   cache.NewPeerCache(cfg.Server.PeerCacheSize, cfg.Server.PeerTTL, logger),
		hub:     handlers.NewTelemetryHub(logger),
	}

	s.sender = control.NewSender(cfg.Link, s.mailbox, logger)
	if err := s.sender.Open(); err != nil {
		s.release()
		return nil, err
	}

	s.receiver = control.NewReceiver(cfg.Link, s.handleReport, logger)
	if err := s.receiver.Bind(); err != nil {
		s.release()
		return nil, err
	}

	device, err := camera.Open(cfg.Camera, logger)
	if err != nil {
		s.release()
		return nil, err
	}
	s.camera = device

	s.frameProcessor = processor.NewFrameProcessor(cfg, logger)

	if cfg.Server.HTTPAddr != "" {
		s.rateLimiter = middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)
		s.httpServer = &http.Server{
			Addr:         cfg.Server.HTTPAddr,
			Handler:      s.setupRoutes(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	return s, nil
}

func (s *Server) handleReport(report models.Report) {
	s.peers.Record(report)
	s.hub.Broadcast(report)
}

func (s *Server) setupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestLogger(s.logger, "/health", "/api/v1/health", "/ws"))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(s.config.Server.AllowedOrigins))
	router.Use(middleware.IPWhitelist(s.config.Server.AllowedIPs))

	statusHandler := handlers.NewStatusHandler(s.frameProcessor, s.queue, s.sender, s.receiver, s.peers, s.logger)
	health := middleware.HealthCheck(serviceName, func() bool {
		return s.sender.State() == control.StateRunning && s.receiver.State() == control.StateRunning
	})

	router.GET("/health", health)
	router.GET("/ws", s.rateLimiter.RateLimit(), s.hub.HandleWebSocket)

	api := router.Group("/api/v1")
	api.Use(s.rateLimiter.RateLimit())
	{
		api.GET("/health", health)
		api.GET("/stats", statusHandler.GetStats)
		api.GET("/telemetry", statusHandler.GetTelemetry)
		api.GET("/telemetry/:peer", statusHandler.GetPeerTelemetry)
		api.GET("/rate-limit", func(c *gin.Context) {
			c.JSON(http.StatusOK, s.rateLimiter.GetGlobalStats())
		})
	}

	return router
}

// Run starts every loop and blocks until ctx ends or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.release()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.sender.Run(ctx) })
	g.Go(func() error { return s.receiver.Run(ctx) })
	g.Go(func() error {
		defer s.queue.Close()
		return s.camera.Stream(ctx, s.queue)
	})
	g.Go(func() error { return s.frameProcessor.Run(ctx, s.queue, s.mailbox.Publish) })

	if s.httpServer != nil {
		g.Go(func() error {
			s.logger.Info("Starting status server",
				zap.String("addr", s.httpServer.Addr),
				zap.String("environment", s.config.Server.Environment))
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			s.hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.httpServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// release is safe to call on a partly built Server.
func (s *Server) release() {
	if s.sender != nil {
		s.sender.Close()
	}
	if s.receiver != nil {
		s.receiver.Close()
	}
	if s.camera != nil {
		s.camera.Close()
	}
	if s.frameProcessor != nil {
		if err := s.frameProcessor.Shutdown(); err != nil {
			s.logger.Error("Failed to shutdown frame processor", zap.Error(err))
		}
		s.frameProcessor = nil
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Shutdown()
	}
	s.queue.Close()
	s.peers.Close()
}
