// Package seal generates and persists the device-local key used to
// protect bookmark passwords at rest, and seals/unseals password
// strings with it. It mirrors the shape of the teacher's own
// fs/config/obscure package (Seal/Unseal, base64 wire format, an
// injectable RNG so tests are deterministic — see obscure_test.go's
// cryptRand) but, per spec.md §4.5, swaps the teacher's weak
// fixed-key AES-CTR obfuscation for a per-device generated key and an
// authenticated cipher.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"

	"github.com/warrengalyen/gateway/internal/gwerr"
)

// KeySize is the width of the generated seal key, per spec.md §3: 16
// random bytes (AES-128).
const KeySize = 16

// cryptRand is overridden in tests for deterministic key/nonce
// generation, exactly as the teacher's obscure package overrides
// cryptRand in obscure_test.go.
var cryptRand io.Reader = rand.Reader

// Key is a loaded or freshly generated 16-byte seal key.
type Key [KeySize]byte

// LoadOrGenerate reads the key file at path, or generates and persists
// a fresh one if it does not exist. The key is never rotated once
// written: an existing file is always trusted as-is. The file is
// written with owner-only read/write permission.
func LoadOrGenerate(path string) (Key, error) {
	var key Key
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != KeySize {
			return key, gwerr.New(gwerr.InvalidFormat, "seal key file has wrong length")
		}
		copy(key[:], data)
		return key, nil
	}
	if !os.IsNotExist(err) {
		return key, gwerr.Wrap(err, gwerr.InvalidFormat, "reading seal key")
	}

	if _, err := io.ReadFull(cryptRand, key[:]); err != nil {
		return key, gwerr.Wrap(err, gwerr.ProtocolError, "generating seal key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return key, gwerr.Wrap(err, gwerr.InvalidFormat, "creating config dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, key[:], 0o600); err != nil {
		return key, gwerr.Wrap(err, gwerr.InvalidFormat, "writing seal key")
	}
	if err := os.Rename(tmp, path); err != nil {
		return key, gwerr.Wrap(err, gwerr.InvalidFormat, "installing seal key")
	}
	return key, nil
}

// Sealed is the opaque on-disk representation of a sealed password:
// the ciphertext+tag and the nonce used to produce it, both carried
// base64-encoded in the Bookmark record per spec.md §3.
type Sealed struct {
	CipherText string // base64 standard encoding of ciphertext || tag
	Nonce      string // base64 standard encoding of the GCM nonce
}

// Seal encrypts password with key using AES-128-GCM, a standard
// authenticated mode, per spec.md §4.5. Each call generates a fresh
// random nonce.
func Seal(password string, key Key) (Sealed, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return Sealed{}, gwerr.Wrap(err, gwerr.ProtocolError, "aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Sealed{}, gwerr.Wrap(err, gwerr.ProtocolError, "gcm mode")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(cryptRand, nonce); err != nil {
		return Sealed{}, gwerr.Wrap(err, gwerr.ProtocolError, "generating nonce")
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(password), nil)
	return Sealed{
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// Unseal reverses Seal. It fails with gwerr.ProtocolError if the
// base64 is malformed, and with gwerr.ProtocolError if authentication
// fails (wrong key, corrupted data, or the key was regenerated since
// the password was sealed — by design this is irreversible, per
// spec.md §4.5: "unsealing old bookmarks after a key regeneration is
// impossible by design").
func Unseal(s Sealed, key Key) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(s.CipherText)
	if err != nil {
		return "", gwerr.Wrap(err, gwerr.ProtocolError, "decoding sealed password")
	}
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return "", gwerr.Wrap(err, gwerr.ProtocolError, "decoding nonce")
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", gwerr.Wrap(err, gwerr.ProtocolError, "aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", gwerr.Wrap(err, gwerr.ProtocolError, "gcm mode")
	}
	if len(nonce) != gcm.NonceSize() {
		return "", gwerr.New(gwerr.ProtocolError, "invalid nonce length")
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", gwerr.Wrap(err, gwerr.ProtocolError, "authentication failed unsealing password")
	}
	return string(plain), nil
}
