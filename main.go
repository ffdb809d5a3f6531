package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tasknest/data-sync/config"
	"github.com/tasknest/data-sync/store"
	"github.com/tasknest/data-sync/store/postgres"
	"github.com/tasknest/data-sync/store/sqlite"
	"github.com/tasknest/data-sync/sync"
)

func main() {
	config, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	storage, err := openStorage(config)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer storage.Close()

	syncServer := NewSyncServer(sync.NewService(storage))
	router := CreateRouter(config, syncServer)

	log.Printf("Server listening at %s", config.ListenAddress)
	if err := http.ListenAndServe(config.ListenAddress, router); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

func openStorage(config *config.Config) (store.SyncStorage, error) {
	if config.PgDatabaseUrl != "" {
		return postgres.NewPGSyncStorage(config.PgDatabaseUrl)
	}
	if err := os.MkdirAll(config.SQLiteDirPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}
	return sqlite.NewSQLiteSyncStorage(filepath.Join(config.SQLiteDirPath, "data-sync.db"))
}
