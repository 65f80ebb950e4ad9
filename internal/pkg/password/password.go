package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm is the explicit discriminator for hash families. It is parsed
// from the stored hash exactly once (DetectAlgorithm) and dispatched on,
// instead of re-sniffing prefixes at every call site.
type Algorithm string

const (
	AlgorithmBcrypt   Algorithm = "bcrypt"
	AlgorithmArgon2id Algorithm = "argon2"
)

var (
	ErrUnknownAlgorithm = errors.New("unknown password hash algorithm")
	ErrMalformedHash    = errors.New("malformed password hash")
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case AlgorithmBcrypt:
		return AlgorithmBcrypt, nil
	case AlgorithmArgon2id:
		return AlgorithmArgon2id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// DetectAlgorithm reads the self-describing prefix of a stored hash.
func DetectAlgorithm(encoded string) (Algorithm, error) {
	switch {
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"):
		return AlgorithmBcrypt, nil
	case strings.HasPrefix(encoded, "$argon2"):
		return AlgorithmArgon2id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrMalformedHash, truncate(encoded, 12))
}

// Argon2Params are the argon2id cost parameters embedded in every hash.
type Argon2Params struct {
	Time        uint32
	Memory      uint32 // KiB
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

const DefaultBcryptCost = 12

var DefaultArgon2Params = Argon2Params{
	Time:        3,
	Memory:      64 * 1024,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher hashes and verifies credentials. It is stateless: hash upgrades are
// returned to the caller, never persisted here.
type Hasher struct {
	algorithm  Algorithm
	bcryptCost int
	argon      Argon2Params
}

func New(algorithm Algorithm, bcryptCost int, argon Argon2Params) *Hasher {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = DefaultBcryptCost
	}
	if argon == (Argon2Params{}) {
		argon = DefaultArgon2Params
	}
	return &Hasher{algorithm: algorithm, bcryptCost: bcryptCost, argon: argon}
}

func NewDefault(algorithm Algorithm) *Hasher {
	return New(algorithm, DefaultBcryptCost, DefaultArgon2Params)
}

func (h *Hasher) Algorithm() Algorithm { return h.algorithm }

// Hash produces a self-describing hash with the configured algorithm.
func (h *Hasher) Hash(password string) (string, error) {
	switch h.algorithm {
	case AlgorithmBcrypt:
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
		if err != nil {
			return "", err
		}
		return string(hashed), nil
	case AlgorithmArgon2id:
		return h.hashArgon2(password)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, h.algorithm)
}

// Verify reports whether password matches encoded. A wrong password is
// (false, nil); an error means the stored hash is structurally broken, which
// indicates data corruption rather than user error.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	algo, err := DetectAlgorithm(encoded)
	if err != nil {
		return false, err
	}

	switch algo {
	case AlgorithmBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	case AlgorithmArgon2id:
		parsed, err := parsePHC(encoded)
		if err != nil {
			return false, err
		}
		computed := argon2.IDKey([]byte(password), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, parsed.keyLength)
		return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
	}
	return false, ErrUnknownAlgorithm
}

// MaybeUpgrade returns a replacement hash when the stored one no longer
// matches the configured algorithm or carries weaker argon2 parameters.
// It returns "" when the current hash is fine. Call only after Verify
// succeeded; the caller persists the result.
func (h *Hasher) MaybeUpgrade(password, encoded string) (string, error) {
	algo, err := DetectAlgorithm(encoded)
	if err != nil {
		return "", err
	}

	if algo != h.algorithm {
		return h.Hash(password)
	}

	// bcrypt carries no needs-rehash signal; same-algorithm bcrypt hashes
	// are left alone.
	if algo != AlgorithmArgon2id {
		return "", nil
	}

	parsed, err := parsePHC(encoded)
	if err != nil {
		return "", err
	}
	if h.argonNeedsRehash(parsed) {
		return h.Hash(password)
	}
	return "", nil
}

func (h *Hasher) argonNeedsRehash(parsed *parsedPHC) bool {
	if parsed.time < h.argon.Time {
		return true
	}
	if parsed.memory < h.argon.Memory {
		return true
	}
	if parsed.parallelism < h.argon.Parallelism {
		return true
	}
	return parsed.keyLength != h.argon.KeyLength
}

func (h *Hasher) hashArgon2(password string) (string, error) {
	salt := make([]byte, h.argon.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.argon.Time, h.argon.Memory, h.argon.Parallelism, h.argon.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.argon.Memory,
		h.argon.Time,
		h.argon.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type parsedPHC struct {
	time        uint32
	memory      uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// parsePHC decodes "$argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>".
func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrMalformedHash
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("%w: unsupported variant %q", ErrMalformedHash, parts[1])
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, ErrMalformedHash
	}
	v, err := strconv.Atoi(version)
	if err != nil || v != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %q", ErrMalformedHash, version)
	}

	parsed := &parsedPHC{}
	for _, pair := range strings.Split(parts[3], ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, ErrMalformedHash
		}
		switch key {
		case "m":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, ErrMalformedHash
			}
			parsed.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, ErrMalformedHash
			}
			parsed.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return nil, ErrMalformedHash
			}
			parsed.parallelism = uint8(n)
		default:
			return nil, ErrMalformedHash
		}
	}
	if parsed.memory == 0 || parsed.time == 0 || parsed.parallelism == 0 {
		return nil, ErrMalformedHash
	}

	if parsed.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, ErrMalformedHash
	}
	if parsed.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, ErrMalformedHash
	}
	if len(parsed.salt) == 0 || len(parsed.hash) == 0 {
		return nil, ErrMalformedHash
	}
	parsed.keyLength = uint32(len(parsed.hash))

	return parsed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
