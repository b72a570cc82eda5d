package commands

import (
	"database/sql"

	"github.com/dfeldman/bookbot-sub000/db"
	"github.com/dfeldman/bookbot-sub000/errors"
	"github.com/dfeldman/bookbot-sub000/logger"
)

// openDatabase opens the configured SQLite database and brings its schema up
// to date. Every command that touches data goes through here.
func openDatabase() (*sql.DB, error) {
	log := logger.Named("db")

	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", cfg.Database.Path)
	}

	if err := db.Migrate(database, log); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return database, nil
}
