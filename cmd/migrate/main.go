// Command migrate applies the Execution Log / Analysis Store / Strategy
// Catalog schema (internal/database.AutoMigrateAll) to the database(s)
// named by the standard ares_api config env vars, without starting the
// HTTP server. Useful for provisioning a fresh environment or re-running
// AutoMigrate after a deploy.
package main

import (
	"flag"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ares_api/internal/config"
	"ares_api/internal/database"
)

func openDB(c config.DBConfig) (*gorm.DB, error) {
	if c.Driver == config.DriverSQLite {
		return gorm.Open(sqlite.Open(c.DSN()), &gorm.Config{})
	}
	return gorm.Open(postgres.Open(c.DSN()), &gorm.Config{})
}

func main() {
	both := flag.Bool("both", false, "also migrate the Execution catalog when it is a distinct database from the Analysis catalog")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed: ", err)
	}

	analysisDB, err := openDB(cfg.Analysis)
	if err != nil {
		log.Fatal("analysis db connection failed: ", err)
	}
	if err := database.AutoMigrateAll(analysisDB); err != nil {
		log.Fatal("analysis db migration failed: ", err)
	}
	if err := database.SeedDefaultStrategies(analysisDB); err != nil {
		log.Fatal("strategy catalog seed failed: ", err)
	}
	log.Println("analysis catalog migrated")

	if *both && (cfg.Execution.DSN() != cfg.Analysis.DSN() || cfg.Execution.Driver != cfg.Analysis.Driver) {
		executionDB, err := openDB(cfg.Execution)
		if err != nil {
			log.Fatal("execution db connection failed: ", err)
		}
		if err := database.AutoMigrateAll(executionDB); err != nil {
			log.Fatal("execution db migration failed: ", err)
		}
		log.Println("execution catalog migrated")
	}
}
