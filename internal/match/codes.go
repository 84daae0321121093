package match

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

const (
	codeDigits            = 6
	maxCodeAttempts       = 32
	codeSpace       int64 = 1_000_000
)

var ErrCodesExhausted = errors.New("could not allocate room code")

// CodeReserver claims room codes. Reserve reports false when the code is
// already held.
type CodeReserver interface {
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}

// MemoryReserver keeps reservations in process.
type MemoryReserver struct {
	mu    sync.Mutex
	codes map[string]struct{}
}

func NewMemoryReserver() *MemoryReserver {
	return &MemoryReserver{codes: make(map[string]struct{})}
}

func (r *MemoryReserver) Reserve(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[code]; ok {
		return false, nil
	}
	r.codes[code] = struct{}{}
	return true, nil
}

func (r *MemoryReserver) Release(_ context.Context, code string) error {
	r.mu.Lock()
	delete(r.codes, code)
	r.mu.Unlock()
	return nil
}

// newCode returns a zero-padded 6-digit code.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func validCode(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
