/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env file (if present) and parse command-line flags
  2. Initialize SQLite store and seed card policies
  3. Wire the estimate services
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: billing.db)
           Use ":memory:" for in-memory database
  -config  Card configuration JSON file (default: built-in preset)

ENVIRONMENT:
  PORT           Overrides -port default
  DATABASE_PATH  Overrides -db default
  FX_RATE_URL    Exchange-rate endpoint for USD entries
  FX_CURRENCY    Base currency code for the rate lookup (default: JPY)
  Values may come from a .env file in the working directory.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/billing.db"

  # Run with in-memory database and a custom card set
  ./server -db=":memory:" -config=cards.json

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/estimate"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/fx"
	"github.com/warp/billing-engine/store/sqlite"
)

func main() {
	// A missing .env is fine; flags and real env still apply.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "billing.db"), "SQLite database path")
	configPath := flag.String("config", "", "card configuration JSON file (default: built-in preset)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Card configuration
	cfg := factory.Preset()
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to read config: %v", err)
		}
		cfg, err = factory.New().Parse(string(raw))
		if err != nil {
			log.Fatalf("Failed to parse config: %v", err)
		}
	}

	ctx := context.Background()
	if err := store.SeedPolicies(ctx, cfg.Cards); err != nil {
		log.Fatalf("Failed to seed card policies: %v", err)
	}

	// Currency conversion for USD entries
	var rateSource fx.RateSource = fx.FixedSource{Fixed: fx.DefaultFallbackRate}
	if url := os.Getenv("FX_RATE_URL"); url != "" {
		rateSource = fx.NewHTTPSource(url, envStr("FX_CURRENCY", "JPY"))
	}
	converter := fx.NewConverter(rateSource)

	// Wire the services. The sqlite store implements every persistence
	// interface plus the registry and the holiday calendar.
	purchases := estimate.NewPurchaseService(store, store, converter)
	snapshots := estimate.NewSnapshotService(store, store, store)
	estimates := estimate.NewEstimateService(store, store, store, snapshots, store, store, store)

	// Seed preset recurring charges on a fresh database only.
	if existing, err := snapshots.ListTemplates(ctx); err == nil && len(existing) == 0 {
		for _, in := range cfg.Recurring {
			if _, err := snapshots.CreateTemplate(ctx, in); err != nil {
				log.Printf("Warning: failed to seed template %q: %v", in.Label, err)
			}
		}
	}

	handler := api.NewHandler(store, purchases, snapshots, estimates, store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
