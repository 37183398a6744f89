// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"embed"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openspc/openspc/pkg/log"
)

const supportedVersion uint = 1

//go:embed migrations/sqlite3
var migrationFiles embed.FS

func checkDBVersion(db *sql.DB) {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		log.Fatal(err)
	}
	d, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		log.Fatal(err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite3", driver)
	if err != nil {
		log.Fatal(err)
	}

	v, _, err := m.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			log.Warn("database has no schema yet; apply the embedded migrations (repository.MigrateDB)")
			return
		}
		log.Fatal(err)
	}

	if v < supportedVersion {
		log.Warnf("database schema version %d is behind the %d this binary needs; apply the embedded migrations (repository.MigrateDB)", v, supportedVersion)
		os.Exit(0)
	}
	if v > supportedVersion {
		log.Warnf("database schema version %d is ahead of the %d this binary supports", v, supportedVersion)
		os.Exit(0)
	}
}

// MigrateDB applies every pending migration to db.
func MigrateDB(db string) error {
	d, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, fmt.Sprintf("sqlite3://%s?_foreign_keys=on", db))
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
