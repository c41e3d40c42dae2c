// Package password hashes and verifies account secrets.
//
// Records are self-describing: bcrypt records carry their cost
// ($2a$<cost>$...) and argon2id records use the PHC string format
// ($argon2id$v=19$m=<KiB>,t=<iterations>,p=<threads>$<salt>$<hash>), so
// changing the configured work factor never invalidates stored records.
package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/clipsocial/social-api/internal/api/metrics"
)

// Algorithm selects the hashing scheme used for new records.
type Algorithm string

const (
	Bcrypt   Algorithm = "bcrypt"
	Argon2id Algorithm = "argon2id"
)

const (
	argon2SaltLen = 16
	argon2KeyLen  = 32
	argon2Prefix  = "$argon2id$"

	// bcrypt ignores everything past 72 bytes.
	bcryptMaxSecretLen = 72
)

var (
	ErrEmptySecret     = errors.New("password: secret is empty")
	ErrSecretTooLong   = errors.New("password: secret exceeds 72 bytes")
	ErrMalformedRecord = errors.New("password: malformed hash record")
)

// Params is the work factor configuration.
type Params struct {
	Algorithm     Algorithm
	BcryptCost    int
	Argon2Time    uint32
	Argon2Memory  uint32 // KiB
	Argon2Threads uint8
	// Concurrency bounds how many hash operations run at once.
	Concurrency int
}

// DefaultParams returns bcrypt at cost 12 with argon2id fields set to the
// OWASP baseline (t=1, m=64MiB, p=4).
func DefaultParams() Params {
	return Params{
		Algorithm:     Bcrypt,
		BcryptCost:    12,
		Argon2Time:    1,
		Argon2Memory:  64 * 1024,
		Argon2Threads: 4,
		Concurrency:   runtime.NumCPU(),
	}
}

func (p Params) validate() error {
	switch p.Algorithm {
	case Bcrypt:
		if p.BcryptCost < bcrypt.MinCost || p.BcryptCost > bcrypt.MaxCost {
			return fmt.Errorf("password: bcrypt cost must be between %d and %d (got %d)", bcrypt.MinCost, bcrypt.MaxCost, p.BcryptCost)
		}
	case Argon2id:
		if p.Argon2Time == 0 || p.Argon2Memory == 0 || p.Argon2Threads == 0 {
			return errors.New("password: argon2id time, memory and threads must be positive")
		}
	default:
		return fmt.Errorf("password: unsupported algorithm %q (use bcrypt or argon2id)", p.Algorithm)
	}
	if p.Concurrency <= 0 {
		return fmt.Errorf("password: concurrency must be positive (got %d)", p.Concurrency)
	}
	return nil
}

// Hasher implements ports.PasswordHasher. It is safe for concurrent use.
type Hasher struct {
	params Params
	sem    *semaphore.Weighted
	dummy  string
}

// NewHasher validates params and precomputes the dummy record, which costs one
// hash at startup.
func NewHasher(p Params) (*Hasher, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	h := &Hasher{
		params: p,
		sem:    semaphore.NewWeighted(int64(p.Concurrency)),
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("password: seed dummy record: %w", err)
	}
	dummy, err := h.hash(base64.RawStdEncoding.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("password: build dummy record: %w", err)
	}
	h.dummy = dummy
	return h, nil
}

// Hash returns a freshly salted record for secret.
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if h.params.Algorithm == Bcrypt && len(secret) > bcryptMaxSecretLen {
		return "", ErrSecretTooLong
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("password: hash: %w", err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	record, err := h.hash(secret)
	metrics.PasswordHashDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds())
	return record, err
}

// Verify compares secret against record in constant time with respect to the
// position of the first differing byte.
func (h *Hasher) Verify(ctx context.Context, secret, record string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("password: verify: %w", err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	defer func() {
		metrics.PasswordHashDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	}()

	switch {
	case strings.HasPrefix(record, argon2Prefix):
		return verifyArgon2id(secret, record)
	case isBcrypt(record):
		return verifyBcrypt(secret, record)
	default:
		return false, ErrMalformedRecord
	}
}

// NeedsRehash reports whether record differs in algorithm or work factor from
// the configured params.
func (h *Hasher) NeedsRehash(record string) bool {
	switch h.params.Algorithm {
	case Bcrypt:
		if !isBcrypt(record) {
			return true
		}
		cost, err := bcrypt.Cost([]byte(record))
		return err != nil || cost != h.params.BcryptCost
	case Argon2id:
		rec, err := parseArgon2id(record)
		if err != nil {
			return true
		}
		return rec.time != h.params.Argon2Time ||
			rec.memory != h.params.Argon2Memory ||
			rec.threads != h.params.Argon2Threads ||
			len(rec.key) != argon2KeyLen
	}
	return true
}

func (h *Hasher) DummyRecord() string {
	return h.dummy
}

func (h *Hasher) hash(secret string) (string, error) {
	switch h.params.Algorithm {
	case Argon2id:
		return h.hashArgon2id(secret)
	default:
		out, err := bcrypt.GenerateFromPassword([]byte(secret), h.params.BcryptCost)
		if err != nil {
			return "", fmt.Errorf("password: bcrypt: %w", err)
		}
		return string(out), nil
	}
}

func (h *Hasher) hashArgon2id(secret string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, h.params.Argon2Time, h.params.Argon2Memory, h.params.Argon2Threads, argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Argon2Memory,
		h.params.Argon2Time,
		h.params.Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func isBcrypt(record string) bool {
	return strings.HasPrefix(record, "$2a$") ||
		strings.HasPrefix(record, "$2b$") ||
		strings.HasPrefix(record, "$2y$")
}

func verifyBcrypt(secret, record string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(record), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
}

type argon2Record struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	key     []byte
}

func parseArgon2id(record string) (*argon2Record, error) {
	parts := strings.Split(record, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, ErrMalformedRecord
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, ErrMalformedRecord
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, ErrMalformedRecord
	}
	// threads must fit in uint8 without truncation
	if threads == 0 || threads > 255 || iterations == 0 || memory == 0 {
		return nil, ErrMalformedRecord
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, ErrMalformedRecord
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1024 {
		return nil, ErrMalformedRecord
	}

	return &argon2Record{
		time:    iterations,
		memory:  memory,
		threads: uint8(threads),
		salt:    salt,
		key:     key,
	}, nil
}

func verifyArgon2id(secret, record string) (bool, error) {
	rec, err := parseArgon2id(record)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(secret), rec.salt, rec.time, rec.memory, rec.threads, uint32(len(rec.key)))
	return subtle.ConstantTimeCompare(computed, rec.key) == 1, nil
}
