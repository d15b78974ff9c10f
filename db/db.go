package db

import (
	"database/sql"
	"fmt"
	"go-token-auth/config"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect opens and pings the PostgreSQL database described by cfg.
func Connect(cfg *config.Config, log logrus.FieldLogger) (*sql.DB, error) {
	log.WithField("connection", cfg.DSN(true)).Info("Attempting to connect to the database")

	db, err := sql.Open("postgres", cfg.DSN(false))
	if err != nil {
		log.WithError(err).Error("Failed to open database connection")
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = db.Ping(); err != nil {
		log.WithError(err).Error("Failed to ping database")
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Database connection established successfully")
	return db, nil
}
