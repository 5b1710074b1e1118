package cli

import (
	"context"
	"os"

	"github.com/spf13/viper"

	"github.com/linklift/linklift/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from the --data-dir flag,
// LINKLIFT_DATA_DIR env var, or ~/.linklift as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("LINKLIFT_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.linklift"
}

// openStore opens the credential store using the configured driver and DSN.
// With no database configured it falls back to a SQLite file under the
// data directory.
func openStore() (*store.Store, error) {
	driver := viper.GetString("database.driver")
	dsn := viper.GetString("database.dsn")
	if driver == "" || driver == "sqlite" && dsn == "" {
		return store.OpenDefault(resolveDataDir())
	}
	return store.Open(driver, dsn)
}

// cmdCtx returns a background context for CLI operations.
func cmdCtx() context.Context {
	return context.Background()
}
