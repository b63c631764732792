// Command carm-server serves the session API backed by sqlite, with debug
// routes under /debug/ and a background maintenance loop.
//
//	carm-server [flags]
//	carm-server [flags] migrate <up|down|status|version N|force N|help>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/carm/internal/api"
	"github.com/banshee-data/carm/internal/config"
	"github.com/banshee-data/carm/internal/db"
	"github.com/banshee-data/carm/internal/monitoring"
	"github.com/banshee-data/carm/internal/version"
)

var (
	configPath  = flag.String("config", "", "JSON config file (see "+config.DefaultConfigPath+")")
	listen      = flag.String("listen", "", "Listen address (default from config, "+config.DefaultListen+")")
	dbPath      = flag.String("db-path", "", "Path to sqlite database (default from config, "+config.DefaultDBPath+")")
	devMode     = flag.Bool("dev", false, "Read migrations from internal/db/migrations on disk")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// serverSettings resolves flag overrides on top of the config file.
type serverSettings struct {
	listen              string
	dbPath              string
	sessionTimeout      time.Duration
	maintenanceInterval time.Duration
	seed                uint64
}

func resolveSettings(cfg *config.Config, listenFlag, dbPathFlag string) serverSettings {
	s := serverSettings{
		listen:              cfg.GetListen(),
		dbPath:              cfg.GetDBPath(),
		sessionTimeout:      cfg.GetSessionTimeout(),
		maintenanceInterval: cfg.GetMaintenanceInterval(),
		seed:                cfg.GetSampleSeed(),
	}
	if listenFlag != "" {
		s.listen = listenFlag
	}
	if dbPathFlag != "" {
		s.dbPath = dbPathFlag
	}
	return s
}

// newHandler mounts the session API and the debug routes on one mux.
func newHandler(database *db.DB, s serverSettings) http.Handler {
	mux := api.NewServer(database, s.seed).ServeMux()
	database.AttachAdminRoutes(mux, s.sessionTimeout)
	return api.LoggingMiddleware(mux)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("carm-server"))
		return
	}

	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	settings := resolveSettings(cfg, *listen, *dbPath)
	db.DevMode = *devMode
	monitoring.SetLogger(log.Printf)

	if flag.NArg() > 0 {
		if flag.Arg(0) != "migrate" {
			log.Fatalf("Unknown command: %s", flag.Arg(0))
		}
		if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], settings.dbPath); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	database, err := db.NewDB(settings.dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Purge deleted sessions and cancel stuck ones.
	wg.Add(1)
	go func() {
		defer wg.Done()
		database.RunMaintenance(ctx, settings.maintenanceInterval, settings.sessionTimeout)
		log.Print("maintenance routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    settings.listen,
			Handler: newHandler(database, settings),
		}

		go func() {
			log.Printf("listening on %s", settings.listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
