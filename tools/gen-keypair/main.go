// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// gen-keypair prints a fresh credential-encryption key for
// internal/security.Box, base64-encoded the same way
// security.DecodeKey expects it back.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/openspc/openspc/internal/security"
)

func main() {
	key := make([]byte, security.KeySize)
	// rand.Reader uses /dev/urandom on Linux
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "OPENSPC_CREDENTIAL_KEY=%s\n", base64.StdEncoding.EncodeToString(key))
	fmt.Println("Set this as the env var named by config.json's encryptionKeyEnvVar. Losing it makes every stored broker/OPC-UA credential unrecoverable.")
}
