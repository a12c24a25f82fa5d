package argon2

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"
)

// Params are the argon2id cost parameters.
type Params struct {
	// Memory in KiB.
	Memory uint32

	// Iterations over the memory.
	Iterations uint32

	// Parallelism is the number of threads.
	Parallelism uint8

	// SaltLength in bytes.
	SaltLength uint32

	// KeyLength in bytes.
	KeyLength uint32
}

// DefaultParams mirrors argon2id.DefaultParams.
var DefaultParams = Params{
	Memory:      argon2id.DefaultParams.Memory,
	Iterations:  argon2id.DefaultParams.Iterations,
	Parallelism: argon2id.DefaultParams.Parallelism,
	SaltLength:  argon2id.DefaultParams.SaltLength,
	KeyLength:   argon2id.DefaultParams.KeyLength,
}

// Hasher is the argon2id password hasher.
type Hasher struct {
	params *argon2id.Params
}

// NewHasher creates a Hasher. Zero-valued params fall back to DefaultParams.
func NewHasher(p Params) *Hasher {
	if p == (Params{}) {
		p = DefaultParams
	}
	return &Hasher{params: &argon2id.Params{
		Memory:      p.Memory,
		Iterations:  p.Iterations,
		Parallelism: p.Parallelism,
		SaltLength:  p.SaltLength,
		KeyLength:   p.KeyLength,
	}}
}

// Hash returns a Argon2id hash of a plain-text password. The returned hash follows the format used
// by the Argon2 reference C implementation and looks like this:
// $argon2id$v=19$m=65536,t=3,p=2$c29tZXNhbHQ$RdescudvJCsgt3ub+b+dWRWJTmaaJObG
func (h *Hasher) Hash(_ context.Context, password string) (string, error) {
	hash, err := argon2id.CreateHash(password, h.params)
	if err != nil {
		return "", fmt.Errorf("error creating argon2id hash: %w", err)
	}
	return hash, nil
}

// Verify compares the password with the hash in constant time. The cost parameters are read from the
// hash itself, so hashes created with older parameters keep verifying.
func (h *Hasher) Verify(_ context.Context, password, encodedHash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, encodedHash)
	if err != nil {
		return false, fmt.Errorf("error comparing argon2id hash: %w", err)
	}
	return match, nil
}
