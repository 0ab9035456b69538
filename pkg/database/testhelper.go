package database

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDatabase connects to TEST_DATABASE_URL, migrates, and empties every
// table. Tests calling it are skipped when the variable is unset.
func OpenTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	d, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	if err := Migrate(d); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	res := d.Exec(`TRUNCATE petitions, members, signatures, sent_emails, email_experiments, shares RESTART IDENTITY`)
	if res.Error != nil {
		t.Fatalf("failed to truncate tables: %v", res.Error)
	}

	t.Cleanup(func() {
		if sqlDB, err := d.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return d
}
