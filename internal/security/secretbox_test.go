// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	k := make([]byte, KeySize)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestSealThenOpenRoundTrips(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	blob, err := box.Seal([]byte("s3cr3t-password"))
	require.NoError(t, err)

	plaintext, err := box.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t-password", string(plaintext))
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)
	blob, err := box.Seal([]byte("s3cr3t-password"))
	require.NoError(t, err)

	otherKey := testKey()
	otherKey[0] ^= 0xff
	other, err := NewBox(otherKey)
	require.NoError(t, err)

	_, err = other.Open(blob)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestOpenTruncatedBlobFails(t *testing.T) {
	box, err := NewBox(testKey())
	require.NoError(t, err)

	_, err = box.Open([]byte("short"))
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestNewBoxRejectsWrongKeySize(t *testing.T) {
	_, err := NewBox([]byte("too-short"))
	assert.Error(t, err)
}
