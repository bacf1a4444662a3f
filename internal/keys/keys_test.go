// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keys manages the local key material for the audit trail.
package keys

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func generateTestKeys(t *testing.T) (string, *KeyPair) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "keys")
	pair, err := Generate(dir, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return dir, pair
}

func TestGenerate_CreatesAllMaterial(t *testing.T) {
	dir, pair := generateTestKeys(t)

	for _, name := range []string{PrivateKeyFile, PublicKeyFile, ContentKeyFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
	if pair.Private == nil || pair.Public == nil {
		t.Fatal("Generate returned incomplete pair")
	}
	if pair.Private.N.BitLen() != 2048 {
		t.Errorf("key size = %d bits, want 2048", pair.Private.N.BitLen())
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, PrivateKeyFile))
		if err != nil {
			t.Fatalf("Stat failed: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("private key permissions = %o, want 0600", perm)
		}
		dirInfo, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("Stat dir failed: %v", err)
		}
		if perm := dirInfo.Mode().Perm(); perm != 0700 {
			t.Errorf("key dir permissions = %o, want 0700", perm)
		}
	}
}

func TestGenerate_RefusesOverwrite(t *testing.T) {
	dir, _ := generateTestKeys(t)

	if _, err := Generate(dir, false); !errors.Is(err, ErrKeyExists) {
		t.Errorf("second Generate error = %v, want ErrKeyExists", err)
	}

	// Force replaces the material.
	pair, err := Generate(dir, true)
	if err != nil {
		t.Fatalf("forced Generate failed: %v", err)
	}
	if pair == nil {
		t.Fatal("forced Generate returned nil pair")
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	dir, generated := generateTestKeys(t)

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Public.Equal(&generated.Private.PublicKey) {
		t.Error("loaded public key does not match generated key")
	}
	if !loaded.Private.Equal(generated.Private) {
		t.Error("loaded private key does not match generated key")
	}
}

func TestLoad_MissingPair(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrNoKeyPair) {
		t.Errorf("Load on empty dir = %v, want ErrNoKeyPair", err)
	}
}

func TestLoad_MissingPublicHalf(t *testing.T) {
	dir, _ := generateTestKeys(t)
	if err := os.Remove(filepath.Join(dir, PublicKeyFile)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := Load(dir); !errors.Is(err, ErrNoKeyPair) {
		t.Errorf("Load = %v, want ErrNoKeyPair", err)
	}
}

func TestLoad_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permission check does not apply on Windows")
	}
	dir, _ := generateTestKeys(t)
	if err := os.Chmod(filepath.Join(dir, PrivateKeyFile), 0644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}

	if _, err := Load(dir); !errors.Is(err, ErrKeyFilePermissions) {
		t.Errorf("Load = %v, want ErrKeyFilePermissions", err)
	}
}

func TestLoadPublicKey_WorksWithoutPrivateKey(t *testing.T) {
	dir, generated := generateTestKeys(t)
	if err := os.Remove(filepath.Join(dir, PrivateKeyFile)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	pub, err := LoadPublicKey(dir)
	if err != nil {
		t.Fatalf("LoadPublicKey failed: %v", err)
	}
	if !pub.Equal(&generated.Private.PublicKey) {
		t.Error("loaded public key does not match generated key")
	}
}

func TestLoadPublicKey_Missing(t *testing.T) {
	if _, err := LoadPublicKey(t.TempDir()); !errors.Is(err, ErrNoKeyPair) {
		t.Errorf("LoadPublicKey = %v, want ErrNoKeyPair", err)
	}
}

func TestLoadContentKey(t *testing.T) {
	dir, _ := generateTestKeys(t)

	key, err := LoadContentKey(dir)
	if err != nil {
		t.Fatalf("LoadContentKey failed: %v", err)
	}
	if len(key) != ContentKeyLength {
		t.Errorf("content key length = %d, want %d", len(key), ContentKeyLength)
	}
}

func TestLoadContentKey_Missing(t *testing.T) {
	if _, err := LoadContentKey(t.TempDir()); !errors.Is(err, ErrNoContentKey) {
		t.Errorf("LoadContentKey = %v, want ErrNoContentKey", err)
	}
}

func TestLoadContentKey_WrongLength(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ContentKeyFile), []byte("short"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := LoadContentKey(dir); err == nil {
		t.Error("expected error for truncated content key")
	}
}

func TestFingerprint(t *testing.T) {
	_, pair := generateTestKeys(t)

	fp1, err := Fingerprint(pair.Public)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if len(fp1) != 8 {
		t.Errorf("fingerprint length = %d, want 8", len(fp1))
	}

	fp2, err := Fingerprint(pair.Public)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if fp1 != fp2 {
		t.Error("fingerprint not deterministic")
	}

	_, other := generateTestKeys(t)
	fp3, err := Fingerprint(other.Public)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if fp1 == fp3 {
		t.Error("distinct keys share a fingerprint")
	}
}
