// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package security encrypts broker and OPC-UA server credentials at
// rest with golang.org/x/crypto/nacl/secretbox, the same dependency
// the teacher carries only for bcrypt password hashing, generalised
// here to authenticated symmetric encryption of connection secrets.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the required length of the raw encryption key.
const KeySize = 32

// ErrDecryptFailed means the ciphertext did not authenticate against
// the configured key: wrong key, truncated blob, or tampering.
var ErrDecryptFailed = errors.New("security: credential decryption failed")

// Box encrypts and decrypts credential blobs under one fixed key. A
// zero-value Box is not usable; build one with NewBox.
type Box struct {
	key [KeySize]byte
}

// NewBox builds a Box from a raw key of exactly KeySize bytes, as
// decoded from the env var or sidecar file spec.md §6 names.
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("security: key must be %d bytes, got %d", KeySize, len(key))
	}
	b := &Box{}
	copy(b.key[:], key)
	return b, nil
}

// DecodeKey base64-decodes a key sourced from an env var or file, as
// produced by tools/gen-keypair.
func DecodeKey(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

// Seal encrypts plaintext into a nonce||ciphertext blob suitable for
// storing directly in the credential.ciphertext column.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("security: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &b.key), nil
}

// Open decrypts a blob produced by Seal. It refuses to fall back to
// treating the blob as plaintext: per spec.md §9's Open Question
// resolution, a decrypt failure is fatal to the caller rather than a
// silent plaintext-credential fallback.
func (b *Box) Open(blob []byte) ([]byte, error) {
	if len(blob) < 24 {
		return nil, ErrDecryptFailed
	}
	var nonce [24]byte
	copy(nonce[:], blob[:24])

	plaintext, ok := secretbox.Open(nil, blob[24:], &nonce, &b.key)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
