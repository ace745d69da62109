package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/puente-ai/puente/internal/config"
	"github.com/puente-ai/puente/internal/ledger"
	"github.com/puente-ai/puente/internal/llm"
	"github.com/puente-ai/puente/internal/proxy/engine"
	"github.com/puente-ai/puente/internal/proxy/handlers"
	"github.com/puente-ai/puente/internal/version"
)

func main() {
	host := flag.String("host", "0.0.0.0", "Host to bind to")
	port := flag.Int("port", 4000, "Port to bind to")
	configPath := flag.String("config", "config.yaml", "Path to model route config file")
	dbPath := flag.String("db", "requests.db", "Path to SQLite database")
	timeout := flag.Int("timeout", config.DefaultTimeout, "Default request timeout in seconds")
	retries := flag.Int("retries", config.DefaultRetries, "Default number of retry attempts")
	flag.Parse()

	// Provider keys usually live in a local .env; absence is fine.
	if err := godotenv.Load(); err == nil {
		log.Printf("✓ Loaded environment from .env")
	}

	table := config.Load(*configPath, config.Defaults{Timeout: *timeout, NumRetries: *retries})

	store, err := ledger.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	eng := engine.New(engine.Adapt(llm.NewClient()), store)

	r := chi.NewRouter()
	r.Use(quietLogger)
	r.Use(chimiddleware.Recoverer)

	// Dashboard and its polling APIs
	r.Get("/", handlers.DashboardHandler())
	r.Get("/models", handlers.ModelsHandler(table))
	r.Get("/requests", handlers.RequestsHandler(store))
	r.Get("/stats", handlers.StatsHandler(store))
	r.Get("/stats/daily", handlers.DailyStatsHandler(store))
	r.Get("/stats/hourly", handlers.HourlyStatsHandler(store))
	r.Get("/stats/date-range", handlers.DateRangeHandler(store))
	r.Delete("/errors", handlers.ClearErrorsHandler(store))
	r.Get("/health", handlers.HealthHandler())
	r.Post("/config/reload", handlers.ReloadConfigHandler(table))

	// OpenAI-compatible API
	chat := handlers.ChatCompletionsHandler(table, eng)
	r.Post("/v1/chat/completions", chat)
	r.Post("/chat/completions", chat)

	addr := fmt.Sprintf("%s:%d", *host, *port)
	displayURL := fmt.Sprintf("localhost:%d", *port)
	if *host != "0.0.0.0" && *host != "" {
		displayURL = addr
	}

	log.Printf("🚀 Puente %s starting on http://%s", version.Version, addr)
	log.Printf("📊 Dashboard: http://%s", displayURL)
	log.Printf("🔌 OpenAI API: http://%s/v1", displayURL)
	log.Printf("🗄️ Database: %s | Config: %s (%d routes)", *dbPath, *configPath, table.Len())

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// noisyPaths are dashboard polling endpoints kept out of the access log so
// an idle dashboard tab does not flood the console.
var noisyPaths = []string{
	"/",
	"/stats",
	"/stats/daily",
	"/stats/hourly",
	"/stats/date-range",
	"/requests",
	"/models",
	"/health",
}

// quietLogger is chi's request logger with the dashboard polling endpoints
// filtered out.
func quietLogger(next http.Handler) http.Handler {
	logged := chimiddleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && isNoisy(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func isNoisy(path string) bool {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return true
	}
	for _, p := range noisyPaths {
		if path == p {
			return true
		}
	}
	return false
}
