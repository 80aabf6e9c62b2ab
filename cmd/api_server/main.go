package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"tunefetch/pkg/api"
	"tunefetch/pkg/app"
	"tunefetch/pkg/config"
	"tunefetch/pkg/logger"
)

var (
	configPath = flag.String("config", "", "配置文件路径 (例如 /app/config/tunefetch.yaml)")
	family     = flag.String("family", config.FamilySpotify, "对外提供的提供商族")
	port       = flag.String("port", "", "监听端口，覆盖配置文件")
	logLevel   = flag.String("log-level", "", "日志级别 (debug, info, warn, error)")
	logFormat  = flag.String("log-format", "json", "日志格式 (json or text)")
	redisAddr  = flag.String("redis", "", "Redis 地址，设置后使用 Redis 作为共享状态存储")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithComponent("api_server").WithError(err).Fatal("Failed to load configuration")
	}

	// 命令行参数优先
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *redisAddr != "" {
		cfg.Store.Driver = "redis"
		cfg.Store.Redis.Addr = *redisAddr
	}
	logger.Init(logger.Config{Level: cfg.Logger.Level, Format: *logFormat})
	log := logger.WithComponent("api_server")

	gin.SetMode(cfg.Server.Mode)

	a, err := app.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to create application")
	}
	defer a.Close()

	reporter, err := a.Reporter()
	if err != nil {
		log.WithError(err).Fatal("Failed to create circuit reporter")
	}
	reporter.Start()
	defer reporter.Stop()

	opts := api.Options{
		Catalog:  a.Service(*family),
		Circuits: reporter,
		Checks:   a.HealthChecks(),
	}
	if a.Metrics != nil {
		opts.Metrics = a.Metrics.Handler()
	}

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting API server...")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down API server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Failed to gracefully shutdown server")
	}
}
