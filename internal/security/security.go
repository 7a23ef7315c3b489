package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"

	"golang.org/x/crypto/argon2"
)

var (
	ErrEmptyPassword    = errors.New("empty password")
	ErrBadEncryptionKey = errors.New("encryption key must be 32 bytes")
	ErrCiphertextShort  = errors.New("ciphertext too short")
)

type Argon2Params struct {
	// Stored alongside the hash so verification uses the original cost.
	Time    uint32 `json:"t"` // iterations
	Memory  uint32 `json:"m"` // KiB
	Threads uint8  `json:"p"` // parallelism
	KeyLen  uint32 `json:"k"` // bytes
	SaltLen uint32 `json:"s"` // bytes
}

// Service bundles the stateless security primitives: argon2id password
// hashing, SHA-256 token hashing, AES-GCM secret encryption, and random
// token/code generation. It holds configuration only, never request state,
// so a single instance is shared and swapped for a stub in tests.
type Service struct {
	currentVer int
	cur        Argon2Params
	algoName   string
	encKey     []byte
}

func New(encryptionKey []byte) (*Service, error) {
	if len(encryptionKey) != 32 {
		return nil, ErrBadEncryptionKey
	}
	return &Service{
		currentVer: 1,
		algoName:   "argon2id",
		cur: Argon2Params{
			Time:    3,
			Memory:  64 * 1024, // 64 MiB
			Threads: 1,
			KeyLen:  32,
			SaltLen: 16,
		},
		encKey: encryptionKey,
	}, nil
}

func (s *Service) HashPassword(password string) (hash, salt, paramsJSON []byte, algo string, ver int, err error) {
	if password == "" {
		return nil, nil, nil, "", 0, ErrEmptyPassword
	}
	salt = make([]byte, s.cur.SaltLen)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, nil, "", 0, err
	}
	hash = argon2.IDKey([]byte(password), salt, s.cur.Time, s.cur.Memory, s.cur.Threads, s.cur.KeyLen)
	paramsJSON, err = json.Marshal(s.cur)
	if err != nil {
		return nil, nil, nil, "", 0, err
	}
	return hash, salt, paramsJSON, s.algoName, s.currentVer, nil
}

// Credential is the read surface of a stored password credential. Declared
// here so domain rows and test stubs both satisfy it.
type Credential interface {
	GetAlgo() string
	GetHash() []byte
	GetSalt() []byte
	GetParamsJSON() []byte
	GetPasswordVer() int
}

func (s *Service) VerifyPassword(password string, cred Credential) (rehashNeeded bool, ok bool) {
	if cred.GetAlgo() != s.algoName {
		return true, false // different algorithm, request rehash on success
	}
	var stored Argon2Params
	if err := json.Unmarshal(cred.GetParamsJSON(), &stored); err != nil {
		return true, false
	}
	calculated := argon2.IDKey([]byte(password), cred.GetSalt(), stored.Time, stored.Memory, stored.Threads, stored.KeyLen)
	ok = subtle.ConstantTimeCompare(calculated, cred.GetHash()) == 1

	// Rehash if policy changed (params or version)
	rehashNeeded = ok && (cred.GetPasswordVer() != s.currentVer ||
		stored.Time != s.cur.Time ||
		stored.Memory != s.cur.Memory ||
		stored.Threads != s.cur.Threads ||
		stored.KeyLen != s.cur.KeyLen ||
		stored.SaltLen != s.cur.SaltLen)

	return rehashNeeded, ok
}

// HashToken hashes an opaque token value for storage. One-time tokens,
// refresh secrets, and backup codes are never persisted in plaintext.
func (s *Service) HashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// Encrypt seals plaintext with AES-256-GCM under the server secret.
// The random nonce is prepended to the ciphertext.
func (s *Service) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return append(nonce, aesgcm.Seal(nil, nonce, plaintext, nil)...), nil
}

func (s *Service) Decrypt(blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(blob) < aesgcm.NonceSize() {
		return nil, ErrCiphertextShort
	}
	nonce, ciphertext := blob[:aesgcm.NonceSize()], blob[aesgcm.NonceSize():]
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

// NewOpaqueToken returns a URL-safe random token for one-time links and
// refresh secrets. 32 bytes of entropy, base64url without padding.
func (s *Service) NewOpaqueToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewTOTPSecret returns a fresh 32-byte TOTP seed and its base32 encoding.
func (s *Service) NewTOTPSecret() ([]byte, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw), nil
}

// NewNumericCode returns a zero-padded random numeric code for the emailed
// two-factor variant.
func (s *Service) NewNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	code := n.String()
	for len(code) < digits {
		code = "0" + code
	}
	return code, nil
}

const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewBackupCodes returns n single-use recovery codes. The alphabet skips
// ambiguous characters since users type these by hand.
func (s *Service) NewBackupCodes(n, length int) ([]string, error) {
	codes := make([]string, 0, n)
	alphabetLen := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < n; i++ {
		buf := make([]byte, length)
		for j := range buf {
			idx, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return nil, err
			}
			buf[j] = backupCodeAlphabet[idx.Int64()]
		}
		codes = append(codes, string(buf))
	}
	return codes, nil
}
