package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/asgard/ledger/internal/api"
	"github.com/asgard/ledger/internal/idempotency"
	"github.com/asgard/ledger/internal/lifecycle"
	"github.com/asgard/ledger/internal/repository"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "ledger.db"
	}

	window := idempotency.DefaultWindow
	if raw := os.Getenv("IDEMPOTENCY_WINDOW_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			log.Fatalf("Invalid IDEMPOTENCY_WINDOW_SECONDS: %q", raw)
		}
		window = time.Duration(secs) * time.Second
	}

	log.Printf("Initializing database at %s", dbPath)
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	txnRepo := repository.NewTransactionRepo(db)
	fingerprints := idempotency.NewFingerprinter(window)
	engine := lifecycle.NewService(txnRepo, fingerprints)

	count, err := txnRepo.Count()
	if err != nil {
		log.Fatalf("Failed to count transactions: %v", err)
	}
	log.Printf("Database holds %d transactions", count)

	router := api.NewRouter(engine)

	log.Printf("Asgard Transaction Ledger")
	log.Printf("Idempotency window: %s", window)
	log.Printf("Listening on http://localhost:%s", port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /transactions")
	log.Printf("  GET    /transactions")
	log.Printf("  GET    /transactions/{id}")
	log.Printf("  PATCH  /transactions/{id}")
	log.Printf("  DELETE /transactions/{id}")

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited properly")
}
