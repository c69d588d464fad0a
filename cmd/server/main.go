package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/npezzotti/go-dmchat/internal/api"
	"github.com/npezzotti/go-dmchat/internal/config"
	"github.com/npezzotti/go-dmchat/internal/database"
	"github.com/npezzotti/go-dmchat/internal/server"
	"github.com/npezzotti/go-dmchat/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

func main() {
	flag.String("addr", "localhost:8000", "server address")
	flag.String("dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", `database connection string, or "memory" for a non-persistent store`)
	flag.String("signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.String("allowed-origins", "", "comma-separated list of allowed origins for CORS")
	flag.String("timezone", "Local", "IANA time zone used for last seen days")
	flag.Bool("migrate", false, "apply database migrations on startup")
	flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-dmchat] ", log.LstdFlags)

	cfg, err := config.Load(flag.CommandLine)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	var db database.Repository
	if cfg.DatabaseDSN == config.MemoryDSN {
		logger.Println("using in-memory store")
		db = database.NewMemoryRepository()
	} else {
		if cfg.Migrate {
			logger.Println("applying migrations...")
			if err := database.Migrate(cfg.DatabaseDSN); err != nil {
				logger.Fatal("migrate: ", err)
			}
		}

		pg, err := database.NewPgRepository(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("db open: ", err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Println("db close:", err)
			}
		}()
		db = pg
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, db, statsUpdater, cfg.Location)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	// a previous crash may have left users marked online
	resetCtx, cancelReset := context.WithTimeout(context.Background(), 10*time.Second)
	err = chatServer.ResetPresence(resetCtx)
	cancelReset()
	if err != nil {
		logger.Fatal("reset presence: ", err)
	}

	srv := api.NewDMChatApp(mux, logger, chatServer, db, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
