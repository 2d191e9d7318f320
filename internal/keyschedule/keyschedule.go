// Package keyschedule derives the master key, per-column sub-keys and the
// vault encryption key from a user seed and/or password.
//
// All determinism in the core flows from the master key plus a column name;
// keeping vault encryption on a separate key means vault storage can be
// rotated without reshuffling any anonymization mapping.
package keyschedule

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the size in bytes of every derived key in this package.
	KeySize = 32

	masterSalt      = "anonymizer-v1"
	defaultPBKDF2It = 200000
)

// Schedule derives and memoizes the keys used across one engine run.
type Schedule struct {
	master []byte

	mu         sync.RWMutex
	columnKeys map[string][]byte
}

// New derives the master key from seed (PBKDF2-HMAC-SHA256, fixed salt,
// iterations rounds). If seed is nil, a fresh random 32-byte master key is
// generated instead; callers that need reproducibility across processes
// must persist that key themselves (see cmd/keygen.go).
func New(seed []byte, iterations int) (*Schedule, error) {
	if iterations <= 0 {
		iterations = defaultPBKDF2It
	}

	var master []byte
	if seed == nil {
		master = make([]byte, KeySize)
		if _, err := io.ReadFull(rand.Reader, master); err != nil {
			return nil, fmt.Errorf("keyschedule: failed to generate random master key: %w", err)
		}
	} else {
		master = pbkdf2.Key(seed, []byte(masterSalt), iterations, KeySize, sha256.New)
	}

	return &Schedule{
		master:     master,
		columnKeys: make(map[string][]byte),
	}, nil
}

// MasterKey returns the 32-byte master key. Callers must not retain or leak
// the returned slice; it aliases the schedule's internal state.
func (s *Schedule) MasterKey() []byte {
	return s.master
}

// ColumnKey returns HMAC-SHA256(master_key, column), memoized per column so
// repeated lookups for the same column during a run are O(1) after the
// first derivation.
func (s *Schedule) ColumnKey(column string) []byte {
	s.mu.RLock()
	if k, ok := s.columnKeys[column]; ok {
		s.mu.RUnlock()
		return k
	}
	s.mu.RUnlock()

	mac := hmac.New(sha256.New, s.master)
	mac.Write([]byte(column))
	key := mac.Sum(nil)

	s.mu.Lock()
	s.columnKeys[column] = key
	s.mu.Unlock()

	return key
}

// DomainHMAC computes HMAC(master_key, "domain:" || domain), used by the
// domain map (spec §3) so all emails sharing a domain anonymize to the same
// domain.
func (s *Schedule) DomainHMAC(domain string) []byte {
	mac := hmac.New(sha256.New, s.master)
	mac.Write([]byte("domain:"))
	mac.Write([]byte(domain))
	return mac.Sum(nil)
}

// DeriveVaultKey derives the 32-byte vault encryption key from a password
// and per-vault salt via PBKDF2-HMAC-SHA256. If password is nil, a fresh
// random key is returned instead — callers must export it (spec §6) since
// it cannot be rederived.
func DeriveVaultKey(password, salt []byte, iterations int) ([]byte, error) {
	if iterations <= 0 {
		iterations = defaultPBKDF2It
	}
	if password == nil {
		key := make([]byte, KeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("keyschedule: failed to generate random vault key: %w", err)
		}
		return key, nil
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New), nil
}
