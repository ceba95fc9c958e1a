package ns

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Verdict is the outcome of checking a request credential.
type Verdict int

const (
	VerdictValid Verdict = iota
	VerdictInvalid
	VerdictUserNotFound
)

func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictInvalid:
		return "invalid"
	case VerdictUserNotFound:
		return "unknown_user"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// VerdictError maps a non-valid verdict to its error kind. It returns nil for
// VerdictValid.
func VerdictError(v Verdict) error {
	switch v {
	case VerdictValid:
		return nil
	case VerdictUserNotFound:
		return ErrAuthUserUnknown
	}
	return ErrAuthInvalid
}

// RequestCredential is the identity triple carried by each request.
// It is never persisted.
type RequestCredential struct {
	UID       string
	Nonce     string
	Signature string
}

// IssuedKey is returned once when a key is provisioned or rotated. APIKey is
// the only copy of the raw key; the server keeps KeyHash.
type IssuedKey struct {
	UID     string
	APIKey  string
	KeyHash string
}

// HashKey returns the hex SHA-256 of a raw API key, the form kept in storage.
func HashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// Sign computes the request signature for a nonce: lowercase hex of
// HMAC-SHA256 keyed with the server salt over keyHash, a zero byte, and nonce.
func Sign(keyHash, nonce, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(keyHash))
	mac.Write([]byte{0})
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

// CredentialStore verifies request signatures against stored key hashes.
// The nonce is not remembered: a captured (nonce, signature) pair stays valid
// until the key is rotated.
//
// Key hashes are read from the repository on every verify, so a rotation made
// by another process is seen by the next request.
type CredentialStore struct {
	users  UserRepository
	salt   string
	clock  Clock
	ids    IDGenerator
	logger Logger
}

func NewCredentialStore(users UserRepository, salt string, clock Clock, ids IDGenerator, logger Logger) *CredentialStore {
	return &CredentialStore{
		users:  users,
		salt:   salt,
		clock:  clock,
		ids:    ids,
		logger: logger,
	}
}

// Verify checks signature against the stored credential for uid.
// Errors are only returned for repository failures.
func (s *CredentialStore) Verify(ctx context.Context, uid, nonce, signature string) (Verdict, error) {
	if uid == "" {
		return VerdictUserNotFound, nil
	}
	keyHash, ok, err := s.keyHash(ctx, uid)
	if err != nil {
		return VerdictInvalid, err
	}
	if !ok {
		return VerdictUserNotFound, nil
	}
	if nonce == "" || signature == "" {
		return VerdictInvalid, nil
	}

	expected := Sign(keyHash, nonce, s.salt)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return VerdictInvalid, nil
	}
	return VerdictValid, nil
}

// VerifyRequest is Verify over a RequestCredential.
func (s *CredentialStore) VerifyRequest(ctx context.Context, c RequestCredential) (Verdict, error) {
	return s.Verify(ctx, c.UID, c.Nonce, c.Signature)
}

func (s *CredentialStore) keyHash(ctx context.Context, uid string) (string, bool, error) {
	u, err := s.users.FindUser(ctx, uid)
	if err != nil {
		return "", false, fmt.Errorf("finding user: %w", err)
	}
	if u == nil {
		return "", false, nil
	}
	return u.KeyHash, true, nil
}

// Rotate issues a new API key for uid. The hash is replaced by a single
// UPDATE, so verifies running concurrently see either the old or the new key.
func (s *CredentialStore) Rotate(ctx context.Context, uid string) (*IssuedKey, error) {
	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	keyHash := HashKey(apiKey)

	if err := s.users.UpdateUserKey(ctx, uid, keyHash, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("rotating key for %s: %w", uid, err)
	}

	s.logger.Info("key rotated", "uid", uid)
	return &IssuedKey{UID: uid, APIKey: apiKey, KeyHash: keyHash}, nil
}

// Provision creates a new user with a fresh API key.
func (s *CredentialStore) Provision(ctx context.Context) (*IssuedKey, error) {
	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	u := &User{
		UID:       s.ids.New(),
		KeyHash:   HashKey(apiKey),
		CreatedAt: s.clock.Now(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user provisioned", "uid", u.UID)
	return &IssuedKey{UID: u.UID, APIKey: apiKey, KeyHash: u.KeyHash}, nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
