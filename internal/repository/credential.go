// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/openspc/openspc/internal/security"
)

// OwnerKind discriminates which entity a stored credential belongs to.
type OwnerKind string

const (
	OwnerMqttBroker    OwnerKind = "mqtt_broker"
	OwnerOpcUaServer   OwnerKind = "opcua_server"
	OwnerOutboundBroker OwnerKind = "outbound_broker"
)

// SaveCredential encrypts and persists the connection secret
// (password, client cert) of a broker/server through a security.Box.
// It returns an error if the box is nil, rather than falling back to
// storing plaintext.
func (r *Repository) SaveCredential(ctx context.Context, box *security.Box, kind OwnerKind, ownerID int64, secret []byte) error {
	if box == nil {
		return fmt.Errorf("repository: save credential: no encryption key configured")
	}
	ciphertext, err := box.Seal(secret)
	if err != nil {
		return fmt.Errorf("repository: seal credential: %w", err)
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO credential (owner_kind, owner_id, ciphertext) VALUES (?, ?, ?)
		 ON CONFLICT(owner_kind, owner_id) DO UPDATE SET ciphertext = excluded.ciphertext`,
		kind, ownerID, ciphertext)
	if err != nil {
		return fmt.Errorf("repository: save credential: %w", err)
	}
	return nil
}

// LoadCredential decrypts the stored secret for an owner. It returns
// (nil, nil) when no credential row exists for that owner.
func (r *Repository) LoadCredential(ctx context.Context, box *security.Box, kind OwnerKind, ownerID int64) ([]byte, error) {
	if box == nil {
		return nil, fmt.Errorf("repository: load credential: no encryption key configured")
	}

	var ciphertext []byte
	err := sq.Select("ciphertext").From("credential").
		Where(sq.Eq{"owner_kind": kind, "owner_id": ownerID}).
		RunWith(r.stmtCache).QueryRowContext(ctx).Scan(&ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: load credential: %w", err)
	}

	plaintext, err := box.Open(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("repository: decrypt credential for %s %d: %w", kind, ownerID, err)
	}
	return plaintext, nil
}
