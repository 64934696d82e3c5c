package core

import (
	"fmt"
	"os"

	"github.com/AndreyMensh/TreeManagementApi/internal/infra/persistence/memory"
	"github.com/AndreyMensh/TreeManagementApi/internal/infra/persistence/postgres"
	"github.com/AndreyMensh/TreeManagementApi/internal/infra/persistence/sqlite"
	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	TREEAPI_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	TREEAPI_SQLITE_PATH: path to sqlite file (default ./treeapi.db)
//	TREEAPI_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := os.Getenv("TREEAPI_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("TREEAPI_SQLITE_PATH"), engine)
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("TREEAPI_POSTGRES_DSN"), engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
