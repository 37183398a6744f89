// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/openspc/openspc/pkg/log"
)

var (
	dbConnOnce     sync.Once
	dbConnInstance *DBConnection
)

// DBConnection wraps the single *sqlx.DB this process talks to.
// Only sqlite3 is supported: the teacher's mysql branch is dropped
// because go.mod carries no mysql driver to ground it on (see
// DESIGN.md), and every sample/measurement/violation row here is
// written by exactly one process, so sqlite3's single-writer model is
// not a bottleneck the way it would be for a multi-node HPC scheduler.
func Connect(db string) {
	dbConnOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
		dbHandle, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", db))
		if err != nil {
			log.Fatal(err)
		}

		// sqlite does not multithread; more than one connection would
		// just mean waiting for locks.
		dbHandle.SetMaxOpenConns(1)

		dbConnInstance = &DBConnection{DB: dbHandle}
		checkDBVersion(dbHandle.DB)
	})
}

type DBConnection struct {
	DB *sqlx.DB
}

func GetConnection() *DBConnection {
	if dbConnInstance == nil {
		log.Fatal("database connection not initialized")
	}

	return dbConnInstance
}
