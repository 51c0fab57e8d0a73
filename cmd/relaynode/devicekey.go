package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
)

// loadOrCreateDeviceKey reads the node's persistent Ed25519 identity from
// path, generating and persisting a new key pair on first run. It returns
// the public half as the [32]byte form core uses for reward exclusion.
func loadOrCreateDeviceKey(path string) ([32]byte, error) {
	var pub [32]byte

	if data, err := os.ReadFile(path); err == nil {
		if len(data) != ed25519.PrivateKeySize {
			return pub, fmt.Errorf("device key %s: unexpected length %d", path, len(data))
		}
		priv := ed25519.PrivateKey(data)
		copy(pub[:], priv.Public().(ed25519.PublicKey))
		return pub, nil
	} else if !os.IsNotExist(err) {
		return pub, fmt.Errorf("read device key: %w", err)
	}

	publicKey, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return pub, fmt.Errorf("generate device key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pub, fmt.Errorf("create device key dir: %w", err)
	}
	if err := os.WriteFile(path, priv, 0o600); err != nil {
		return pub, fmt.Errorf("write device key: %w", err)
	}
	copy(pub[:], publicKey)
	return pub, nil
}
