// Command lmsrcore boots the market core against a database: it loads
// configuration, opens the persistence layer, applies migrations, and
// serves a Prometheus /metrics endpoint for the transaction engine's
// instrumentation. Wiring an HTTP trading API on top of internal/engine
// is left to the environment this core is embedded in.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/socialpredict/lmsrcore/internal/config"
	"github.com/socialpredict/lmsrcore/internal/engine"
	"github.com/socialpredict/lmsrcore/migration"
	_ "github.com/socialpredict/lmsrcore/migration/migrations"
)

func main() {
	var envPath, yamlPath, metricsAddr string
	flag.StringVar(&envPath, "env", "", "path to a .env file (optional)")
	flag.StringVar(&yamlPath, "config", "", "path to a YAML config overlay (optional)")
	flag.StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
	flag.Parse()

	cfg := config.Load(envPath, yamlPath)
	log.Printf("lmsrcore: loaded config: hold_period=%s kelly_fraction=%v max_retry_attempts=%d",
		cfg.HoldPeriod, cfg.KellyFraction, cfg.MaxRetryAttempts)

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("lmsrcore: DATABASE_URL is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("lmsrcore: open database: %v", err)
	}

	if err := migration.Run(db); err != nil {
		log.Fatalf("lmsrcore: apply migrations: %v", err)
	}

	_ = engine.New(db, cfg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: metricsAddr, Handler: mux}

	go func() {
		log.Printf("lmsrcore: serving metrics on %s", metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("lmsrcore: metrics server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	log.Println("lmsrcore: shut down")
}
