package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/carm/internal/httputil"
	"github.com/banshee-data/carm/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode reads migrations from internal/db/migrations on disk instead of
// the embedded copy.
var DevMode = false

func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/db/migrations"), nil
	}
	return fs.Sub(migrationsFS, "migrations")
}

// DB is the session store.
type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// OpenDB opens the database without touching the schema. Foreign keys and
// a busy timeout are enabled on every connection.
func OpenDB(path string) (*DB, error) {
	dsn := "file:" + path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(path, ":memory:") {
		// Each connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &DB{DB: sqlDB, path: path, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database and applies pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migrations, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := db.MigrateUp(migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the time source used for session timestamps.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}

func (db *DB) now() time.Time {
	return db.clock.Now()
}

// AttachAdminRoutes mounts the debug pages on mux: live SQL, a stuck
// session listing and session counts.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux, sessionTimeout time.Duration) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "C-arm sessions",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("stuck-sessions", "Sessions queued or running past their timeout", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stuck, err := db.StuckSessions(sessionTimeout)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, stuck)
	}))

	debug.KVFunc("Sessions by status", func() any {
		counts, err := db.CountSessionsByStatus()
		if err != nil {
			return err.Error()
		}
		return counts
	})
}
