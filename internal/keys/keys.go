// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keys manages the local key material for the audit trail: the RSA
// signing pair that seals every record and the symmetric content key kept
// alongside it for image encryption.
//
// Generation is an explicit one-time operation (rigtrail keys generate).
// Nothing in the hot path ever creates keys implicitly; a missing pair is a
// fatal setup error so a misconfigured host cannot silently produce
// unverifiable records.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/jeranaias/rigtrail/internal/util"
)

// File names inside the key directory.
const (
	PrivateKeyFile = "audit_private_key.pem"
	PublicKeyFile  = "audit_public_key.pem"
	ContentKeyFile = "image_encryption_key.bin"
)

// ContentKeyLength is the required size of the symmetric content key.
const ContentKeyLength = 32

const rsaKeyBits = 2048

var (
	// ErrNoKeyPair indicates the signing pair has never been generated.
	ErrNoKeyPair = errors.New("no signing key pair found (run 'rigtrail keys generate' once to create one)")

	// ErrNoContentKey indicates the symmetric content key is missing.
	ErrNoContentKey = errors.New("no content encryption key found (run 'rigtrail keys generate' once to create one)")

	// ErrKeyExists guards against accidental overwrite of live key material.
	ErrKeyExists = errors.New("key material already exists (pass --force to overwrite)")

	// ErrKeyFilePermissions rejects private keys readable by other users.
	ErrKeyFilePermissions = errors.New("private key file has insecure permissions - must be 0600 or more restrictive")
)

// KeyPair holds the loaded RSA signing pair. The private key never leaves
// local storage; it is loaded once per process lifetime.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// Load reads the PEM pair from dir. A missing file maps to ErrNoKeyPair;
// the caller surfaces it as a fatal setup error, not a retry.
func Load(dir string) (*KeyPair, error) {
	privPath := filepath.Join(dir, PrivateKeyFile)
	pubPath := filepath.Join(dir, PublicKeyFile)

	for _, path := range []string{privPath, pubPath} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: missing %s", ErrNoKeyPair, path)
		}
	}

	if err := checkPrivateKeyPermissions(privPath); err != nil {
		return nil, err
	}

	priv, err := loadPrivateKey(privPath)
	if err != nil {
		return nil, err
	}
	pub, err := loadPublicKey(pubPath)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, Public: pub}, nil
}

// Generate creates the RSA-2048 signing pair and the 32-byte content key in
// dir. Existing material is refused unless force is set, so a fat-fingered
// rerun cannot orphan an already-started chain.
func Generate(dir string, force bool) (*KeyPair, error) {
	privPath := filepath.Join(dir, PrivateKeyFile)
	if !force {
		if _, err := os.Stat(privPath); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrKeyExists, privPath)
		}
	}

	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := util.AtomicWriteFileWithDir(privPath, privPEM, 0600, 0700); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(filepath.Join(dir, PublicKeyFile), pubPEM, 0644, 0700); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}

	contentKey := make([]byte, ContentKeyLength)
	if _, err := rand.Read(contentKey); err != nil {
		return nil, fmt.Errorf("failed to generate content key: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(filepath.Join(dir, ContentKeyFile), contentKey, 0600, 0700); err != nil {
		return nil, fmt.Errorf("failed to write content key: %w", err)
	}

	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// LoadPublicKey reads only the public half of the pair. Verification needs
// no private key, so a missing or locked-down private key file must not
// block it.
func LoadPublicKey(dir string) (*rsa.PublicKey, error) {
	path := filepath.Join(dir, PublicKeyFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: missing %s", ErrNoKeyPair, path)
	}
	return loadPublicKey(path)
}

// LoadContentKey reads and validates the symmetric content key.
func LoadContentKey(dir string) ([]byte, error) {
	path := filepath.Join(dir, ContentKeyFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: missing %s", ErrNoContentKey, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read content key: %w", err)
	}
	if len(data) != ContentKeyLength {
		return nil, fmt.Errorf("content key %s has length %d, want %d", path, len(data), ContentKeyLength)
	}
	return data, nil
}

// Fingerprint returns the first 8 hex characters of the SHA-256 digest of
// the public key's DER encoding. Shown in status output so operators can
// spot key rotation without key bytes ever being printed.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:4]), nil
}

// checkPrivateKeyPermissions rejects group- or world-accessible private
// keys. Windows has no POSIX permission bits; the 0700 key directory DACL
// covers it there.
func checkPrivateKeyPermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat private key: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("%w: file %s has mode %o, should be 0600 or 0400", ErrKeyFilePermissions, path, mode)
	}
	return nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("private key %s: no PEM block found", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key %s: not an RSA key", path)
	}
	return rsaKey, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("public key %s: no PEM block found", path)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key %s: not an RSA key", path)
	}
	return rsaKey, nil
}
