package homepulse

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/snappy"
	"golang.org/x/crypto/pbkdf2"
)

// SnapshotBackend defines the interface for analysis snapshot storage.
// Backends exist for process memory, the local filesystem, and S3-compatible
// object stores.
type SnapshotBackend interface {
	// Read reads a snapshot from storage.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write writes a snapshot to storage.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes a snapshot from storage.
	Delete(ctx context.Context, key string) error

	// List returns all snapshot keys matching a prefix, oldest first.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources.
	Close() error
}

// Ensure interfaces are implemented.
var (
	_ SnapshotBackend = (*MemorySnapshotBackend)(nil)
	_ SnapshotBackend = (*FileSnapshotBackend)(nil)
	_ SnapshotBackend = (*S3SnapshotBackend)(nil)
)

// EncryptionConfig configures at-rest encryption of archived snapshots.
type EncryptionConfig struct {
	// Enabled turns on encryption for archived snapshots.
	Enabled bool `yaml:"enabled"`

	// Key is the AES-256 key (32 bytes). If empty, KeyPassword is used to
	// derive a key.
	Key []byte `yaml:"-"`

	// KeyPassword derives the encryption key via PBKDF2 when Key is unset.
	KeyPassword string `yaml:"key_password"`
}

const (
	snapshotNonceSize = 12
	snapshotSaltSize  = 32
	snapshotKeySize   = 32
	snapshotKDFRounds = 100000
	snapshotKeyPrefix = "analysis/"
	snapshotKeyLayout = "20060102T150405.000Z"
	snapshotKeySuffix = ".json.sz"
)

// SnapshotArchiver writes completed analyses to a backend as timestamped,
// snappy-compressed JSON objects, optionally encrypted.
type SnapshotArchiver struct {
	backend SnapshotBackend
	enc     *snapshotEncryptor
	now     func() time.Time
}

// NewSnapshotArchiver creates an archiver. The encryption config may be nil.
func NewSnapshotArchiver(backend SnapshotBackend, enc *EncryptionConfig) (*SnapshotArchiver, error) {
	a := &SnapshotArchiver{backend: backend, now: time.Now}
	if enc != nil && enc.Enabled {
		e, err := newSnapshotEncryptor(*enc)
		if err != nil {
			return nil, err
		}
		a.enc = e
	}
	return a, nil
}

// Archive stores one analysis result and returns its key.
func (a *SnapshotArchiver) Archive(ctx context.Context, result *AnalysisResult) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	data := snappy.Encode(nil, payload)
	if a.enc != nil {
		data, err = a.enc.encrypt(data)
		if err != nil {
			return "", fmt.Errorf("encrypt snapshot: %w", err)
		}
	}

	key := snapshotKeyPrefix + a.now().UTC().Format(snapshotKeyLayout) + snapshotKeySuffix
	if err := a.backend.Write(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// Load reads one archived analysis back.
func (a *SnapshotArchiver) Load(ctx context.Context, key string) (*AnalysisResult, error) {
	data, err := a.backend.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if a.enc != nil {
		data, err = a.enc.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("decrypt snapshot: %w", err)
		}
	}
	payload, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var result AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &result, nil
}

// List returns all archived snapshot keys, oldest first.
func (a *SnapshotArchiver) List(ctx context.Context) ([]string, error) {
	return a.backend.List(ctx, snapshotKeyPrefix)
}

// snapshotEncryptor provides AES-256-GCM encryption. When configured with a
// password, the key is derived per snapshot via PBKDF2 and the salt is
// prepended to the ciphertext; a fixed 32-byte key uses a zero salt slot so
// the wire format stays uniform. Layout: salt | nonce | ciphertext.
type snapshotEncryptor struct {
	key      []byte // fixed key, nil when password-derived
	password []byte
}

func newSnapshotEncryptor(cfg EncryptionConfig) (*snapshotEncryptor, error) {
	if len(cfg.Key) == snapshotKeySize {
		return &snapshotEncryptor{key: cfg.Key}, nil
	}
	if len(cfg.Key) != 0 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	if cfg.KeyPassword == "" {
		return nil, errors.New("encryption requires a key or key password")
	}
	return &snapshotEncryptor{password: []byte(cfg.KeyPassword)}, nil
}

// keyForSalt resolves the AES key for a given salt.
func (e *snapshotEncryptor) keyForSalt(salt []byte) []byte {
	if e.key != nil {
		return e.key
	}
	return pbkdf2.Key(e.password, salt, snapshotKDFRounds, snapshotKeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (e *snapshotEncryptor) encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, snapshotSaltSize)
	if e.key == nil {
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, err
		}
	}
	gcm, err := newGCM(e.keyForSalt(salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, snapshotNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, snapshotSaltSize+snapshotNonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func (e *snapshotEncryptor) decrypt(data []byte) ([]byte, error) {
	if len(data) < snapshotSaltSize+snapshotNonceSize {
		return nil, errors.New("ciphertext too short")
	}
	salt := data[:snapshotSaltSize]
	nonce := data[snapshotSaltSize : snapshotSaltSize+snapshotNonceSize]
	ciphertext := data[snapshotSaltSize+snapshotNonceSize:]

	gcm, err := newGCM(e.keyForSalt(salt))
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}
