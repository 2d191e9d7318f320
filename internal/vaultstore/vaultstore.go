// Package vaultstore implements the encrypted, persistent, bidirectional
// mapping vault described in spec §4.2: a single bbolt file storing
// (column, original) <-> anonymized pairs, with AES-256-GCM encrypted
// values and HMAC-truncated keys so the file never exposes plaintext
// originals to someone with disk access but not the seed.
//
// bbolt is chosen because it is the single-writer, single-file embedded
// store already exercised in the retrieval pack for exactly this role (a
// persistent PII-value cache keyed by a hash): its serialized Update
// transactions give the "write-then-check, unique constraint on the
// forward key" atomicity the spec requires for upsert with no extra
// locking on our part.
package vaultstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketForward = "forward"
	bucketReverse = "reverse"
	bucketColumns = "columns"
	bucketMeta    = "meta"

	metaMagicKey = "magic"
	metaSaltKey  = "salt"
	metaItersKey = "iterations"

	// Magic carries the file format version; a mismatched or missing magic
	// means the file is not (or no longer) a valid vault.
	Magic = "ANOV1\x00"

	keyFingerprintLen = 16
)

// ErrCorrupt is returned for a header or record that fails to parse or
// authenticate. It is never swallowed: callers see column and, where
// available, a key fingerprint, per spec §4.2 ("never silently skipped").
type ErrCorrupt struct {
	Column      string
	Fingerprint string
	Reason      string
}

func (e *ErrCorrupt) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("vaultstore: corrupt record in column %q (key %s): %s", e.Column, e.Fingerprint, e.Reason)
	}
	return fmt.Sprintf("vaultstore: corrupt vault: %s", e.Reason)
}

// ErrAuth indicates the vault key does not authenticate the stored
// ciphertext — a wrong password or a tampered file (spec §7 VaultAuth,
// fatal for the run).
var ErrAuth = errors.New("vaultstore: authentication failed, wrong password or tampered file")

// Entry is one mapping record (spec §3 Mapping Entry).
type Entry struct {
	Column      string    `json:"column"`
	Original    string    `json:"original"`
	Anonymized  string    `json:"anonymized"`
	DataType    string    `json:"data_type_tag"`
	CreatedAtNS int64     `json:"created_at"`
	createdAt   time.Time `json:"-"`
}

// CreatedAt returns the entry's creation time.
func (e Entry) CreatedAt() time.Time {
	if !e.createdAt.IsZero() {
		return e.createdAt
	}
	return time.Unix(0, e.CreatedAtNS)
}

// UpsertResult reports whether upsert created a new entry or found one
// already present (spec §4.2: "AlreadyExists(existing_anonymized)").
type UpsertResult struct {
	Inserted          bool
	ExistingAnonymized string
}

// Vault is the bbolt-backed mapping store. A Vault instance is safe for
// concurrent use by multiple goroutines; bbolt serializes writers and
// allows concurrent readers.
type Vault struct {
	db        *bbolt.DB
	masterKey []byte // HMAC key for forward/reverse key derivation
	vaultKey  []byte // AES-GCM key for value encryption
}

// Open opens or creates the vault file at path. masterKey derives the
// non-reversible lookup keys (shared with the rest of the core's key
// schedule); vaultKey encrypts stored values and is independent of it
// (spec §4.1 rationale: vault storage rotates without reshuffling
// mappings). salt and iterations are recorded in the file header on
// first creation; subsequent opens check only the magic and ignore the
// salt and iterations passed in.
func Open(path string, masterKey, vaultKey, salt []byte, iterations int) (*Vault, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("vaultstore: open %s: %w", path, err)
	}

	v := &Vault{db: db, masterKey: masterKey, vaultKey: vaultKey}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketForward, bucketReverse, bucketColumns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}

		meta := tx.Bucket([]byte(bucketMeta))
		existingMagic := meta.Get([]byte(metaMagicKey))
		if existingMagic == nil {
			meta.Put([]byte(metaMagicKey), []byte(Magic))
			meta.Put([]byte(metaSaltKey), salt)
			itersBytes := []byte(fmt.Sprintf("%d", iterations))
			meta.Put([]byte(metaItersKey), itersBytes)
			return nil
		}
		if string(existingMagic) != Magic {
			return &ErrCorrupt{Reason: "bad magic header"}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return v, nil
}

// Close releases the underlying file handle. No background writer holds
// the vault open (spec §3 lifecycle).
func (v *Vault) Close() error {
	return v.db.Close()
}

// Flush durably commits pending writes. bbolt's Update already fsyncs on
// commit, so the extra db.Sync here is redundant after committed updates;
// it is kept for interface parity with the spec's explicit flush()
// operation and to make commit-batching policy visible at the call site.
func (v *Vault) Flush() error {
	return v.db.Sync()
}

func (v *Vault) forwardKey(column, original string) []byte {
	return v.truncatedHMAC(append(append([]byte(column), 0x00), original...))
}

func (v *Vault) reverseKey(column, anonymized string) []byte {
	return v.truncatedHMAC(append(append([]byte(column), 0x01), anonymized...))
}

func (v *Vault) truncatedHMAC(msg []byte) []byte {
	mac := hmac.New(sha256.New, v.masterKey)
	mac.Write(msg)
	return mac.Sum(nil)[:keyFingerprintLen]
}

func (v *Vault) encryptEntry(e Entry) ([]byte, error) {
	plain, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("vaultstore: marshal entry: %w", err)
	}

	block, err := aes.NewCipher(v.vaultKey)
	if err != nil {
		return nil, fmt.Errorf("vaultstore: cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vaultstore: gcm init: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vaultstore: nonce generation: %w", err)
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func (v *Vault) decryptEntry(blob []byte) (Entry, error) {
	block, err := aes.NewCipher(v.vaultKey)
	if err != nil {
		return Entry{}, fmt.Errorf("vaultstore: cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Entry{}, fmt.Errorf("vaultstore: gcm init: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return Entry{}, &ErrCorrupt{Reason: "ciphertext shorter than nonce"}
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Entry{}, ErrAuth
	}
	var e Entry
	if err := json.Unmarshal(plain, &e); err != nil {
		return Entry{}, &ErrCorrupt{Reason: "malformed entry payload: " + err.Error()}
	}
	return e, nil
}

// GetForward returns the anonymized value for (column, original), or
// ("", false) if absent.
func (v *Vault) GetForward(column, original string) (string, bool, error) {
	key := v.forwardKey(column, original)
	var found []byte
	err := v.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketForward)).Get(key)
		if b != nil {
			found = append([]byte(nil), b...)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("vaultstore: get_forward: %w", err)
	}
	if found == nil {
		return "", false, nil
	}
	entry, err := v.decryptEntry(found)
	if err != nil {
		if cerr, ok := err.(*ErrCorrupt); ok {
			cerr.Column = column
			cerr.Fingerprint = fmt.Sprintf("%x", key)
		}
		return "", false, err
	}
	return entry.Anonymized, true, nil
}

// GetReverse returns the original value for (column, anonymized), or
// ("", false) if absent.
func (v *Vault) GetReverse(column, anonymized string) (string, bool, error) {
	key := v.reverseKey(column, anonymized)
	var found []byte
	err := v.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketReverse)).Get(key)
		if b != nil {
			found = append([]byte(nil), b...)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("vaultstore: get_reverse: %w", err)
	}
	if found == nil {
		return "", false, nil
	}
	entry, err := v.decryptEntry(found)
	if err != nil {
		if cerr, ok := err.(*ErrCorrupt); ok {
			cerr.Column = column
			cerr.Fingerprint = fmt.Sprintf("%x", key)
		}
		return "", false, err
	}
	return entry.Original, true, nil
}

// Upsert atomically inserts entry unless (column, original) already
// exists, in which case it reports the existing anonymized value instead
// (spec §4.2: "write-then-check with a unique constraint on the forward
// key"). bbolt serializes all Update transactions, so the check and the
// write happen under the same exclusive writer lock with no separate
// locking required.
func (v *Vault) Upsert(e Entry) (UpsertResult, error) {
	fwdKey := v.forwardKey(e.Column, e.Original)
	revKey := v.reverseKey(e.Column, e.Anonymized)

	if e.CreatedAtNS == 0 {
		e.CreatedAtNS = time.Now().UnixNano()
	}

	var result UpsertResult
	err := v.db.Update(func(tx *bbolt.Tx) error {
		fwd := tx.Bucket([]byte(bucketForward))
		if existing := fwd.Get(fwdKey); existing != nil {
			decoded, err := v.decryptEntry(existing)
			if err != nil {
				return err
			}
			result = UpsertResult{Inserted: false, ExistingAnonymized: decoded.Anonymized}
			return nil
		}

		blob, err := v.encryptEntry(e)
		if err != nil {
			return err
		}
		if err := fwd.Put(fwdKey, blob); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketReverse)).Put(revKey, blob); err != nil {
			return err
		}

		cols := tx.Bucket([]byte(bucketColumns))
		existingIdx := cols.Get([]byte(e.Column))
		// existingIdx aliases bbolt's mmap and is only valid for this
		// transaction; copy before appending instead of growing it in place.
		newIdx := make([]byte, len(existingIdx), len(existingIdx)+len(fwdKey))
		copy(newIdx, existingIdx)
		cols.Put([]byte(e.Column), append(newIdx, fwdKey...))

		result = UpsertResult{Inserted: true, ExistingAnonymized: e.Anonymized}
		return nil
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("vaultstore: upsert: %w", err)
	}
	return result, nil
}

// IterColumn calls fn for every entry recorded under column, in
// insertion order, stopping early if fn returns false. It is intended
// for diagnostics (spec §4.2), not the hot path.
func (v *Vault) IterColumn(column string, fn func(Entry) bool) error {
	return v.db.View(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(bucketColumns)).Get([]byte(column))
		fwd := tx.Bucket([]byte(bucketForward))
		for i := 0; i+keyFingerprintLen <= len(idx); i += keyFingerprintLen {
			key := idx[i : i+keyFingerprintLen]
			blob := fwd.Get(key)
			if blob == nil {
				continue
			}
			entry, err := v.decryptEntry(blob)
			if err != nil {
				if cerr, ok := err.(*ErrCorrupt); ok {
					cerr.Column = column
					cerr.Fingerprint = fmt.Sprintf("%x", key)
				}
				return err
			}
			if !fn(entry) {
				return nil
			}
		}
		return nil
	})
}
