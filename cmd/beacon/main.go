package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
	"github.com/lumenhq/beacon/internal/common/config"
	"github.com/lumenhq/beacon/internal/hub"
	"github.com/lumenhq/beacon/internal/mirror"
	"github.com/lumenhq/beacon/internal/presence"
	"github.com/lumenhq/beacon/internal/scheduler"
	"github.com/lumenhq/beacon/internal/server"
	"github.com/lumenhq/beacon/pkg/logger"
	"github.com/lumenhq/beacon/pkg/metrics"
	"github.com/lumenhq/beacon/pkg/version"
)

var (
	configPath  = flag.String("conf", "", "path to configuration file")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting beacon",
		zap.String("version", version.Get()),
		zap.Int("port", cfg.Server.Port))

	m := metrics.New(cfg.Metrics)
	clk := clock.New()

	h := hub.New(log, m, clk)
	tracker := hub.NewTracker(h, log, clk, m, cfg.Liveness.ActiveWindow, map[cnst.TransportKind]time.Duration{
		cnst.TransportWebSocket: cfg.WebSocket.StaleThreshold,
		cnst.TransportSSE:       cfg.SSE.StaleThreshold,
	})

	pub := presence.NewPublisher(log, h, nil)
	h.AddListener(pub)
	tracker.SetListener(pub)

	var mir *mirror.Mirror
	if cfg.Mirror.Enabled {
		mir, err = mirror.New(log, cfg.Mirror)
		if err != nil {
			log.Fatal("failed to initialize Redis mirror", zap.Error(err))
		}
		h.AddListener(mir)
		defer mir.Close()
	}

	sched := scheduler.New(log, clk)

	srv := server.New(log, cfg, h, tracker, sched, m, mir)
	if err := srv.RegisterTasks(); err != nil {
		log.Fatal("failed to register periodic tasks", zap.Error(err))
	}
	sched.Start()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	srv.RegisterRoutes(router)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	sched.Stop()
	srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown server", zap.Error(err))
	}
}
