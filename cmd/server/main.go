package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/devroom-io/devroom/internal/api"
	"github.com/devroom-io/devroom/internal/auth"
	"github.com/devroom-io/devroom/internal/cache"
	"github.com/devroom-io/devroom/internal/config"
	"github.com/devroom-io/devroom/internal/database"
	"github.com/devroom-io/devroom/internal/genai"
	"github.com/devroom-io/devroom/internal/server"
	"github.com/devroom-io/devroom/internal/stats"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	redisURL       string
	genaiBaseURL   string
	genaiAPIKey    string
	genaiModel     string
)

func main() {
	// local development convenience, ignored when no .env file is present
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("DEVROOM_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("DEVROOM_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", envOr("DEVROOM_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&redisURL, "redis-url", envOr("DEVROOM_REDIS_URL", ""), "redis URL for the token denylist, revocation disabled when empty")
	flag.StringVar(&genaiBaseURL, "genai-base-url", envOr("GENAI_BASE_URL", "https://generativelanguage.googleapis.com"), "generation API base URL")
	flag.StringVar(&genaiAPIKey, "genai-api-key", os.Getenv("GENAI_API_KEY"), "generation API key")
	flag.StringVar(&genaiModel, "genai-model", envOr("GENAI_MODEL", "gemini-2.0-flash"), "generation model name")
	flag.Parse()

	logger := log.New(os.Stderr, "[devroom] ", log.LstdFlags)

	if len(allowedOrigins) == 0 {
		if origins := os.Getenv("DEVROOM_ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins = strings.Split(origins, ",")
		}
	}

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, redisURL, config.GenAIConfig{
		BaseURL: genaiBaseURL,
		APIKey:  genaiAPIKey,
		Model:   genaiModel,
	})
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	var denylist auth.Denylist
	if cfg.RedisURL != "" {
		dl, err := cache.NewTokenDenylist(logger, cfg.RedisURL)
		if err != nil {
			logger.Fatal("denylist:", err)
		}
		defer func() {
			if err := dl.Close(); err != nil {
				logger.Println("denylist close:", err)
			}
		}()
		denylist = dl
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	generator := genai.NewClient(logger, cfg.GenAI.BaseURL, cfg.GenAI.APIKey, cfg.GenAI.Model)

	chatServer, err := server.NewChatServer(logger, dbConn, generator, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	authn := auth.NewAuthenticator(logger, dbConn, cfg.SigningKey, denylist)

	srv := api.NewDevroomApp(mux, logger, chatServer, dbConn, authn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
