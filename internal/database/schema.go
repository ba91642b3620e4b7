package database

import (
	"context"
	"fmt"
)

// Table names shared by the identity and catalog stores.
const (
	TableActors          = "actors"
	TableObjectLocations = "object_locations"
)

// Timestamps are stored as BIGINT Unix microseconds in every dialect so
// that comparisons in SQL behave the same everywhere.

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS actors (
		id              BIGSERIAL PRIMARY KEY,
		short_id        VARCHAR(16)  NOT NULL UNIQUE,
		display_name    VARCHAR(255) NOT NULL,
		correlation_key VARCHAR(255) NOT NULL UNIQUE,
		access_token    VARCHAR(64)  NOT NULL UNIQUE,
		created_at      BIGINT       NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS object_locations (
		id              BIGSERIAL PRIMARY KEY,
		actor_id        BIGINT       NOT NULL REFERENCES actors(id),
		object_url      TEXT         NOT NULL,
		data_type       VARCHAR(64)  NOT NULL,
		correlation_key VARCHAR(255) NOT NULL,
		updated_at      BIGINT       NOT NULL,
		UNIQUE (correlation_key, data_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_object_locations_data_type ON object_locations (data_type)`,
}

var mysqlDDL = []string{
	"CREATE TABLE IF NOT EXISTS `actors` (" +
		"`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY," +
		"`short_id` VARCHAR(16) NOT NULL UNIQUE," +
		"`display_name` VARCHAR(255) NOT NULL," +
		"`correlation_key` VARCHAR(255) NOT NULL UNIQUE," +
		"`access_token` VARCHAR(64) NOT NULL UNIQUE," +
		"`created_at` BIGINT NOT NULL" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
	"CREATE TABLE IF NOT EXISTS `object_locations` (" +
		"`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY," +
		"`actor_id` BIGINT NOT NULL," +
		"`object_url` TEXT NOT NULL," +
		"`data_type` VARCHAR(64) NOT NULL," +
		"`correlation_key` VARCHAR(255) NOT NULL," +
		"`updated_at` BIGINT NOT NULL," +
		"UNIQUE KEY `uq_object_locations_key_type` (`correlation_key`, `data_type`)," +
		"KEY `idx_object_locations_data_type` (`data_type`)," +
		"CONSTRAINT `fk_object_locations_actor` FOREIGN KEY (`actor_id`) REFERENCES `actors` (`id`)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
}

var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS actors (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		short_id        TEXT    NOT NULL UNIQUE,
		display_name    TEXT    NOT NULL,
		correlation_key TEXT    NOT NULL UNIQUE,
		access_token    TEXT    NOT NULL UNIQUE,
		created_at      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS object_locations (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id        INTEGER NOT NULL REFERENCES actors(id),
		object_url      TEXT    NOT NULL,
		data_type       TEXT    NOT NULL,
		correlation_key TEXT    NOT NULL,
		updated_at      INTEGER NOT NULL,
		UNIQUE (correlation_key, data_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_object_locations_data_type ON object_locations (data_type)`,
}

// DDL returns the statements that create the omem tables for d.
func DDL(d Dialect) []string {
	switch d {
	case DialectMySQL:
		return mysqlDDL
	case DialectSQLite:
		return sqliteDDL
	default:
		return postgresDDL
	}
}

// Migrate creates the omem tables if they do not exist yet.
// Every statement is idempotent, so it is safe to run on each start-up.
func Migrate(ctx context.Context, db DB) error {
	for i, stmt := range DDL(db.Dialect()) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s step %d: %w", db.Dialect(), i+1, err)
		}
	}
	return nil
}
