package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/recognizeim/internal/auth"
	"github.com/example/recognizeim/internal/config"
	"github.com/example/recognizeim/internal/handlers"
	"github.com/example/recognizeim/internal/logging"
	"github.com/example/recognizeim/internal/upstream"
	"github.com/example/recognizeim/internal/usecase"
)

const cacheKeyPrefix = "recognizeim:"

func main() {
	cfg, err := config.Load(os.Getenv("RECOGNIZE_CONFIG"))
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("auth.jwt_secret is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := upstream.Dial(ctx, cfg.Recognize, logger)
	if err != nil {
		logger.Fatal("failed to connect to recognize.im", zap.Error(err))
	}

	var cache usecase.Cache = usecase.NopCache{}
	if cfg.Redis.Enabled {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		redisClient := initRedis(redisCtx, cfg.Redis.Addr, logger)
		defer redisClient.Close()
		cache = usecase.NewRedisCache(redisClient, cacheKeyPrefix)
	} else {
		logger.Info("recognition cache disabled")
	}

	uc := usecase.NewRecognitionUseCase(client, cache, cfg.Redis.TTL, logger)
	authMiddleware := auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newRouter(gin.Default(), uc, authMiddleware),
	}

	logger.Info("recognize.im gateway listening", zap.String("addr", cfg.Server.Addr))
	if err := runServer(server, nil, nil, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newRouter(r *gin.Engine, uc *usecase.RecognitionUseCase, authMiddleware gin.HandlerFunc) *gin.Engine {
	r.MaxMultipartMemory = handlers.MaxUploadSize
	handlers.RegisterRoutes(r, uc, authMiddleware)
	return r
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err), zap.String("addr", addr))
	}
	return client
}

// runServer serves until the server fails or a signal arrives, then drains
// in-flight requests for up to shutdownTimeout. A nil listener binds
// server.Addr; nil signals subscribes to SIGINT and SIGTERM. A closed signals
// channel waits for the server to stop on its own.
func runServer(server *http.Server, listener net.Listener, signals <-chan os.Signal, shutdownTimeout time.Duration, logger *zap.Logger) error {
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	served := make(chan error, 1)
	go func() {
		var err error
		if listener == nil {
			err = server.ListenAndServe()
		} else {
			err = server.Serve(listener)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()

	var sig os.Signal
	select {
	case err := <-served:
		return err
	case s, ok := <-signals:
		if !ok {
			return <-served
		}
		sig = s
	}

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	return <-served
}
