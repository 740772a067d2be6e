package cascade

import (
	"encoding/json"
	"os"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sqliteFilePath returns the on-disk file path backing db if and only if
// its dialector is gorm's sqlite driver (the legacy two-file deployment);
// it returns "" for any other driver (postgres, in-memory ":memory:")
// since those have no single file to copy.
func sqliteFilePath(db *gorm.DB) string {
	dialector, ok := db.Config.Dialector.(*sqlite.Dialector)
	if !ok {
		return ""
	}
	dsn := dialector.DSN
	if dsn == "" || strings.Contains(dsn, ":memory:") {
		return ""
	}
	// Strip sqlite DSN query parameters (e.g. "file.db?_journal_mode=WAL").
	if idx := strings.IndexByte(dsn, '?'); idx >= 0 {
		dsn = dsn[:idx]
	}
	return dsn
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
