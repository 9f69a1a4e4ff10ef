package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"edge-gatekeeper/internal/auth"
	"edge-gatekeeper/internal/config"
	"edge-gatekeeper/internal/handler"
	"edge-gatekeeper/internal/logger"
	"edge-gatekeeper/internal/middleware"
	"edge-gatekeeper/internal/service"
	"edge-gatekeeper/internal/storage"
	"edge-gatekeeper/internal/upstream"
)

func main() {
	// Carregar configurações
	configLoader := config.NewConfigLoader()
	cfg, err := configLoader.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Inicializar logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info("Starting Edge Gatekeeper", map[string]interface{}{
		"version":   "1.0.0",
		"log_level": cfg.LogLevel,
		"port":      cfg.ServerPort,
		"backend":   cfg.BackendURL,
	})

	if cfg.UsesDefaultSecret() {
		appLogger.Warn("JWT_SECRET is using the default value; set a real secret before deploying", nil)
	}

	// Inicializar storage
	storageFactory := storage.NewStorageFactory()
	storageConfig := storage.BuildStorageConfig(
		cfg.StorageType,
		cfg.CleanupInterval,
		cfg.RedisHost,
		cfg.RedisPort,
		cfg.RedisPassword,
		cfg.RedisDB,
	)
	rateLimiterStorage, err := storageFactory.CreateStorage(storageConfig, appLogger)
	if err != nil {
		appLogger.Error("Failed to create storage", err, map[string]interface{}{
			"type": cfg.StorageType,
		})
		os.Exit(1)
	}
	defer rateLimiterStorage.Close()

	// Inicializar service, verificador, upstream e tabela de rotas
	rateLimiterService := service.NewRateLimiterService(rateLimiterStorage, cfg.RateLimit, appLogger)

	verifier, err := auth.NewJWTVerifier(auth.VerifierConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		appLogger.Error("Failed to create token verifier", err, nil)
		os.Exit(1)
	}

	upstreamClient := upstream.NewHTTPClient(cfg.BackendURL, cfg.UpstreamTimeout, appLogger).
		WithMaxResponseBytes(cfg.MaxResponseBytes)
	routes := service.NewRouteTable(cfg.APIPrefix, cfg.RouteMapping, cfg.ProtectedRoutes)

	gatekeeper := middleware.NewGatekeeper(rateLimiterService, verifier, upstreamClient, routes, appLogger).
		WithMaxBodyBytes(cfg.MaxBodyBytes)

	// Inicializar handlers
	storageStats, _ := rateLimiterStorage.(handler.StorageStatsProvider)
	handlers := handler.NewHandlers(rateLimiterService, gatekeeper, storageStats, appLogger).
		WithAdminToken(cfg.AdminToken)

	if !cfg.AdminEnabled() {
		appLogger.Warn("ADMIN_TOKEN is not set; /admin routes will reject every request", nil)
	}

	// Configurar Gin
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Criar router
	router := gin.New()
	if err := middleware.ConfigureTrustedProxies(router, cfg.TrustedProxies); err != nil {
		appLogger.Error("Invalid trusted proxies", err, map[string]interface{}{
			"trusted_proxies": cfg.TrustedProxies,
		})
		os.Exit(1)
	}

	// Middlewares globais
	router.Use(middleware.Recovery(appLogger))

	// Middleware de logging customizado
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	router.Use(gatekeeper.Handler())

	// Configurar rotas operacionais
	handlers.SetupRoutes(router)

	// O upstream tem seu próprio timeout; o WriteTimeout precisa cobri-lo
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Iniciar servidor em goroutine
	go func() {
		appLogger.Info("Starting HTTP server", map[string]interface{}{
			"port": cfg.ServerPort,
			"addr": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server", err, nil)
			os.Exit(1)
		}
	}()

	// Aguardar sinais de interrupção
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	appLogger.Info("Edge Gatekeeper is running", map[string]interface{}{
		"port":       cfg.ServerPort,
		"api_prefix": routes.Prefix(),
		"protected":  cfg.ProtectedRoutes,
		"mappings":   len(cfg.RouteMapping),
		"storage":    cfg.StorageType,
		"endpoints": []string{
			"ANY  " + routes.Prefix() + "/*  (gatekeeper)",
			"GET  /health",
			"GET  /metrics",
			"GET  /admin/status",
			"POST /admin/reset",
		},
		"rate_limit": map[string]interface{}{
			"max_requests": cfg.RateLimit.MaxRequests,
			"window":       cfg.RateLimit.Window.String(),
		},
	})

	// Bloquear até receber sinal
	<-quit
	appLogger.Info("Shutting down server...", nil)

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", err, nil)
		return
	}

	appLogger.Info("Server stopped gracefully", nil)
}
