// Package credential hashes and verifies identity secrets with argon2id.
package credential

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algoName = "argon2id"

	// UnusablePrefix marks a blob that no secret verifies against.
	UnusablePrefix = "!"
)

var (
	ErrEmptySecret = errors.New("empty secret")
	ErrMalformed   = errors.New("malformed credential blob")
)

type Params struct {
	// Stored alongside the hash so verification uses the original cost.
	Time    uint32 `json:"t"` // iterations
	Memory  uint32 `json:"m"` // KiB
	Threads uint8  `json:"p"`
	KeyLen  uint32 `json:"k"`
	SaltLen uint32 `json:"s"`
}

// DefaultParams is the policy for new hashes.
var DefaultParams = Params{
	Time:    3,
	Memory:  64 * 1024, // 64 MiB
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

type Argon2id struct {
	currentVer int // bump when the policy changes
	cur        Params
}

func NewArgon2id() *Argon2id { return NewArgon2idWithParams(DefaultParams) }

func NewArgon2idWithParams(p Params) *Argon2id {
	return &Argon2id{currentVer: 1, cur: p}
}

// Hash returns argon2id$<ver>$<params>$<salt>$<hash>, each binary part in
// unpadded base64.
func (a *Argon2id) Hash(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	salt := make([]byte, a.cur.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := argon2.IDKey([]byte(secret), salt, a.cur.Time, a.cur.Memory, a.cur.Threads, a.cur.KeyLen)
	params, err := json.Marshal(a.cur)
	if err != nil {
		return nil, err
	}
	enc := base64.RawStdEncoding
	return []byte(strings.Join([]string{
		algoName,
		strconv.Itoa(a.currentVer),
		enc.EncodeToString(params),
		enc.EncodeToString(salt),
		enc.EncodeToString(key),
	}, "$")), nil
}

// Verify reports whether secret matches blob. Unusable and malformed blobs
// still cost one key derivation so a miss takes about as long as a hit.
func (a *Argon2id) Verify(blob []byte, secret string) bool {
	d, err := decode(blob)
	if err != nil || secret == "" {
		a.burn(secret)
		return false
	}
	calculated := argon2.IDKey([]byte(secret), d.salt, d.params.Time, d.params.Memory, d.params.Threads, d.params.KeyLen)
	return subtle.ConstantTimeCompare(calculated, d.key) == 1
}

// NeedsRehash reports whether blob was produced under an older policy.
func (a *Argon2id) NeedsRehash(blob []byte) bool {
	d, err := decode(blob)
	if err != nil {
		return true
	}
	return d.ver != a.currentVer || d.params != a.cur
}

// Unusable returns a blob that never verifies, for identities that have no
// secret of their own.
func (a *Argon2id) Unusable() []byte {
	buf := make([]byte, 30)
	_, _ = rand.Read(buf)
	return []byte(UnusablePrefix + base64.RawStdEncoding.EncodeToString(buf))
}

func IsUnusable(blob []byte) bool {
	return len(blob) == 0 || bytes.HasPrefix(blob, []byte(UnusablePrefix))
}

func (a *Argon2id) burn(secret string) {
	salt := make([]byte, a.cur.SaltLen)
	argon2.IDKey([]byte(secret), salt, a.cur.Time, a.cur.Memory, a.cur.Threads, a.cur.KeyLen)
}

type decoded struct {
	ver    int
	params Params
	salt   []byte
	key    []byte
}

func decode(blob []byte) (*decoded, error) {
	if IsUnusable(blob) {
		return nil, ErrMalformed
	}
	parts := strings.Split(string(blob), "$")
	if len(parts) != 5 || parts[0] != algoName {
		return nil, ErrMalformed
	}
	ver, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, ErrMalformed
	}
	enc := base64.RawStdEncoding
	rawParams, err := enc.DecodeString(parts[2])
	if err != nil {
		return nil, ErrMalformed
	}
	var p Params
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return nil, ErrMalformed
	}
	salt, err := enc.DecodeString(parts[3])
	if err != nil {
		return nil, ErrMalformed
	}
	key, err := enc.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return nil, ErrMalformed
	}
	return &decoded{ver: ver, params: p, salt: salt, key: key}, nil
}
