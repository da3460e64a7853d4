// Package main runs lockd, the standalone record locking daemon. It exposes
// the lock service over JSON/HTTP on localhost and broadcasts domain events
// to WebSocket subscribers.
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/quartzcrm/backend/cmd/lockd/handlers"
	"github.com/quartzcrm/backend/internal/db"
	"github.com/quartzcrm/backend/internal/guard"
	"github.com/quartzcrm/backend/internal/locking"
	"github.com/quartzcrm/backend/internal/logging"
	"github.com/quartzcrm/backend/internal/settings"
)

func main() {
	port := flag.String("port", "8090", "listen port")
	dataDir := flag.String("data", "./data", "database directory")
	logLevel := flag.String("log-level", "INFO", "minimum log level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	logging.Init(os.Stdout, logging.LogLevel(*logLevel))
	log := logging.Get()

	database, err := db.Open(*dataDir)
	if err != nil {
		log.Error("failed to open database", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		log.Error("failed to migrate database", err)
		os.Exit(1)
	}

	hub := NewWSHub()
	settingsStore := settings.NewSQLStore(database.DB)

	svc := locking.NewService(
		db.NewLockStore(database.DB),
		db.NewConflictStore(database.DB),
		db.NewActionLogStore(database.DB),
		settingsStore,
		allowAllCapabilities{},
		hub,
	)

	mux := http.NewServeMux()
	handlers.Register(mux, svc, guard.New(svc), settingsStore)
	mux.HandleFunc("/ws", HandleWebSocket(hub))
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"lockd"}`))
	})

	log.Info("lockd listening", map[string]interface{}{"port": *port, "data_dir": *dataDir})
	if err := http.ListenAndServe(":"+*port, mux); err != nil {
		log.Error("server terminated", err)
		os.Exit(1)
	}
}

// allowAllCapabilities grants every feature. lockd trusts its callers to
// have authorized upstream; embedded deployments wire the real RBAC checker
// instead.
type allowAllCapabilities struct{}

func (allowAllCapabilities) UserHasAllFeatures(string, []string, string, *string) bool {
	return true
}
