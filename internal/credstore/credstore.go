// Package credstore resolves provider credentials. The default store reads
// from the environment; SealedFile adds an encrypted at-rest option using
// AES-256-GCM with an argon2id-derived key.
package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Store resolves a credential for a provider. Missing credentials are the
// empty string; availability filtering happens at the router.
type Store interface {
	Get(provider string) string
}

// Func adapts a lookup function to the Store interface.
type Func func(provider string) string

// Get calls the underlying function.
func (f Func) Get(provider string) string { return f(provider) }

// Static is a fixed in-memory store, mostly for tests.
type Static map[string]string

// Get returns the credential for provider, or "".
func (s Static) Get(provider string) string { return s[provider] }

const (
	saltLen      = 16
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32

	// checkValue is sealed alongside the credentials so Open can verify the
	// passphrase even when the file holds no credentials yet.
	checkValue = "nexus-credstore-v1"
)

var (
	// ErrPassphrase is returned when the passphrase fails verification.
	ErrPassphrase = errors.New("credstore: wrong passphrase")
	// ErrPassphraseTooShort is returned for passphrases under 8 bytes.
	ErrPassphraseTooShort = errors.New("credstore: passphrase too short")
)

type fileDoc struct {
	Version int               `json:"version"`
	Salt    string            `json:"salt"`
	Check   string            `json:"check"`
	Creds   map[string]string `json:"creds"`
}

// SealedFile is a Store backed by an encrypted credentials file. Values stay
// encrypted in memory; Get decrypts on demand with the derived key.
type SealedFile struct {
	mu     sync.RWMutex
	key    []byte
	values map[string][]byte
}

// Seal derives a key from passphrase, encrypts each credential, and writes
// the sealed document to path with mode 0600.
func Seal(path string, passphrase []byte, creds map[string]string) error {
	if len(passphrase) < 8 {
		return ErrPassphraseTooShort
	}
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	key := deriveKey(passphrase, salt)

	check, err := encrypt(key, []byte(checkValue))
	if err != nil {
		return err
	}
	doc := fileDoc{
		Version: 1,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Check:   base64.StdEncoding.EncodeToString(check),
		Creds:   make(map[string]string, len(creds)),
	}
	for provider, value := range creds {
		sealed, err := encrypt(key, []byte(value))
		if err != nil {
			return err
		}
		doc.Creds[provider] = base64.StdEncoding.EncodeToString(sealed)
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Open reads a sealed credentials file and verifies the passphrase against
// its check block.
func Open(path string, passphrase []byte) (*SealedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc fileDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("credstore: malformed file: %w", err)
	}
	if doc.Version != 1 {
		return nil, fmt.Errorf("credstore: unsupported version %d", doc.Version)
	}
	salt, err := base64.StdEncoding.DecodeString(doc.Salt)
	if err != nil {
		return nil, fmt.Errorf("credstore: malformed salt: %w", err)
	}
	key := deriveKey(passphrase, salt)

	check, err := base64.StdEncoding.DecodeString(doc.Check)
	if err != nil {
		return nil, fmt.Errorf("credstore: malformed check block: %w", err)
	}
	plain, err := decrypt(key, check)
	if err != nil || string(plain) != checkValue {
		return nil, ErrPassphrase
	}

	s := &SealedFile{
		key:    key,
		values: make(map[string][]byte, len(doc.Creds)),
	}
	for provider, enc := range doc.Creds {
		decoded, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("credstore: malformed credential %s: %w", provider, err)
		}
		s.values[provider] = decoded
	}
	return s, nil
}

// Get decrypts and returns the credential for provider, or "" when the
// provider is unknown, the store is closed, or decryption fails.
func (s *SealedFile) Get(provider string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enc, ok := s.values[provider]
	if !ok || len(s.key) != keyLen {
		return ""
	}
	plain, err := decrypt(s.key, enc)
	if err != nil {
		return ""
	}
	return string(plain)
}

// Providers lists the sealed provider names, sorted.
func (s *SealedFile) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.values))
	for p := range s.values {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close zeroes the derived key. Subsequent Get calls return "".
func (s *SealedFile) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, keyLen)
}

func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	data := ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, data, nil)
}
