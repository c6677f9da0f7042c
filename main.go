package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/friden-zhang/raspi-todo/api"
	"github.com/friden-zhang/raspi-todo/realtime"
	"github.com/friden-zhang/raspi-todo/storage"
)

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "./data/todo.db"
	}
	if dir := filepath.Dir(dsn); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	store, err := storage.New(dsn)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	logger := log.New()
	hub := realtime.NewHub(logger)

	var apiStore api.Store = store
	var notifier api.Notifier = hub
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(redisOpts)
		channel := os.Getenv("UPDATES_CHANNEL")
		if channel == "" {
			channel = "todo-updates"
		}
		ttl := time.Minute
		if v := os.Getenv("CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid CACHE_TTL: %v", err)
			}
			ttl = d
		}
		apiStore = storage.NewCache(store, rc, ttl)
		bridge := realtime.NewBridge(hub, rc, channel, logger)
		go bridge.Run(context.Background())
		notifier = bridge
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
	}))

	api.Register(e, apiStore, notifier, logger)
	e.GET(realtime.Path, realtime.Handler(hub))

	if staticDir := os.Getenv("STATIC_DIR"); staticDir != "" {
		if _, err := os.Stat(staticDir); err == nil {
			// SPA routing: unknown paths fall back to index.html.
			e.Use(middleware.StaticWithConfig(middleware.StaticConfig{
				Root:  staticDir,
				Index: "index.html",
				HTML5: true,
			}))
		} else {
			logger.WithField("dir", staticDir).Warn("static dir not found, skipping")
		}
	}

	listenAddr := ":8000"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
