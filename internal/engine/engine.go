// Package engine implements the Coordinator (spec §4.8) and owns every
// cache the core needs: per-column keys (from keyschedule), per-column
// detector results, and the mode/policy configuration. Per spec §9
// Design Notes ("replace module state with an explicit Engine value"),
// nothing here is package-level mutable state; every run constructs its
// own Engine.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stealthguard/anonycore/internal/detect"
	"github.com/stealthguard/anonycore/internal/keyschedule"
	"github.com/stealthguard/anonycore/internal/logger"
	"github.com/stealthguard/anonycore/internal/transform"
	"github.com/stealthguard/anonycore/internal/vaultstore"
)

// Mode selects the transformation family (spec §6 set_mode).
type Mode string

const (
	ModeFake   Mode = "fake"
	ModeFPE    Mode = "fpe"
	ModeHMAC   Mode = "hmac"
	ModeHybrid Mode = "hybrid"
)

// hybridFPETypes is the set mode "hybrid" routes through FPE; everything
// else routes through the fake-data draw path (spec §6).
var hybridFPETypes = map[detect.DataType]bool{
	detect.Phone:      true,
	detect.NumericID:  true,
	detect.CreditCard: true,
	detect.IBAN:       true,
	detect.UUID:       true,
	detect.Date:       true,
}

// ErrorKind tags the taxonomy in spec §7.
type ErrorKind string

const (
	ErrVaultIO           ErrorKind = "VaultIO"
	ErrVaultAuth         ErrorKind = "VaultAuth"
	ErrDetectorUndecided ErrorKind = "DetectorUndecided"
	ErrExhaustedDomain   ErrorKind = "ExhaustedDomain"
	ErrFormatUnparseable ErrorKind = "FormatUnparseable"
	ErrConfigInvalid     ErrorKind = "ConfigInvalid"
)

// CoreError is the error type every Engine method returns on failure.
type CoreError struct {
	Kind   ErrorKind
	Column string
	Err    error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s in column %q: %v", e.Kind, e.Column, e.Err)
	}
	return fmt.Sprintf("engine: %s in column %q", e.Kind, e.Column)
}

func (e *CoreError) Unwrap() error { return e.Err }

const maxCollisionRetryDefault = 8

type columnCache struct {
	key      []byte
	detector detect.Result
}

// Options configures a new Engine (mirrors internal/config.RunConfig).
type Options struct {
	Mode              Mode
	Strict            bool
	PreserveDomains   bool
	Profile           string
	ExcludedColumns   []string
	MaxCollisionRetry int
	SeedPresent       bool
}

// Engine is the explicit, caller-owned state the Design Notes call for:
// all per-column caches live here, not in package globals.
type Engine struct {
	schedule *keyschedule.Schedule
	vault    *vaultstore.Vault
	sampler  func(column string) []string

	mode              Mode
	strict            bool
	preserveDomains   bool
	profile           string
	maxCollisionRetry int
	seedPresent       bool
	excluded          map[string]bool

	mu      sync.RWMutex
	columns map[string]*columnCache
}

// New constructs an Engine. vault may be nil only if mode will always be
// ModeHMAC (the one mode that never touches storage); otherwise Anonymize
// fails with ConfigInvalid, which lenient mode turns into returning the
// original value.
func New(schedule *keyschedule.Schedule, vault *vaultstore.Vault, opts Options) (*Engine, error) {
	if schedule == nil {
		return nil, &CoreError{Kind: ErrConfigInvalid, Err: errors.New("engine: key schedule is required")}
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	retry := opts.MaxCollisionRetry
	if retry <= 0 {
		retry = maxCollisionRetryDefault
	}

	excluded := make(map[string]bool, len(opts.ExcludedColumns))
	for _, c := range opts.ExcludedColumns {
		excluded[c] = true
	}

	return &Engine{
		schedule:          schedule,
		vault:             vault,
		mode:              mode,
		strict:            opts.Strict,
		preserveDomains:   opts.PreserveDomains,
		profile:           opts.Profile,
		maxCollisionRetry: retry,
		seedPresent:       opts.SeedPresent,
		excluded:          excluded,
		columns:           make(map[string]*columnCache),
	}, nil
}

// SetMode switches the transformation family for subsequent calls.
func (e *Engine) SetMode(mode Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
}

// SetSampler installs the bounded sampler the detector cache-miss path
// uses to pull a fresh sample for a column (spec §4.8 step 4: "sample is
// drawn from the pending input"). The tabular I/O layer that owns
// buffering is out of scope here; it only needs to satisfy this shape.
func (e *Engine) SetSampler(sampler func(column string) []string) {
	e.sampler = sampler
}

// Anonymize is the Coordinator's forward entry point (spec §4.8).
func (e *Engine) Anonymize(column, value string) (string, error) {
	if value == "" {
		return value, nil
	}
	if e.excluded[column] {
		return value, nil
	}

	columnKey := e.schedule.ColumnKey(column)

	if e.currentMode() == ModeHMAC {
		return transform.ApplyHMACFormatPreserving(columnKey, value), nil
	}

	if e.vault == nil {
		return e.fail(&CoreError{Kind: ErrConfigInvalid, Column: column, Err: errors.New("vault not configured")}, value)
	}

	existing, ok, err := e.vault.GetForward(column, value)
	if err != nil {
		return e.fail(e.classifyVaultErr(column, err), value)
	}
	if ok {
		return existing, nil
	}

	det := e.detectorFor(column, value)

	for attempt := 0; attempt <= e.maxCollisionRetry; attempt++ {
		candidate, terr := e.transformFor(column, columnKey, value, det, attempt)
		if terr != nil {
			var fu *transform.FormatUnparseableError
			if !errors.As(terr, &fu) {
				return e.handleTransformErr(column, value, terr)
			}
			// FormatUnparseable is recovered locally, the same as
			// DetectorUndecided: fall back to free_text rendering and
			// warn, independent of the strict/lenient policy (spec §7
			// reserves that knob for unrecoverable errors).
			candidate = e.recoverFormatUnparseable(column, columnKey, value, terr)
		}

		existingOriginal, found, gerr := e.vault.GetReverse(column, candidate)
		if gerr != nil {
			return e.fail(e.classifyVaultErr(column, gerr), value)
		}
		if found && existingOriginal != value {
			// Output collision against a different original: try again.
			// Only the hybrid-mode FPE-type transformers fold attempt
			// into their tweak; the fake, fpe and hybrid fake-draw paths
			// return the same candidate on every attempt, so a collision
			// on those paths ends in ExhaustedDomain.
			continue
		}

		result, uerr := e.vault.Upsert(vaultstore.Entry{
			Column:     column,
			Original:   value,
			Anonymized: candidate,
			DataType:   string(det.Type),
		})
		if uerr != nil {
			return e.fail(e.classifyVaultErr(column, uerr), value)
		}
		if !result.Inserted {
			return result.ExistingAnonymized, nil
		}
		return candidate, nil
	}

	return e.fail(&CoreError{Kind: ErrExhaustedDomain, Column: column}, value)
}

// Deanonymize is the Coordinator's reverse entry point (spec §4.8). The
// bool result reports whether a mapping was found; mode "hmac" always
// reports false since nothing is ever stored for it.
func (e *Engine) Deanonymize(column, value string) (string, bool, error) {
	if value == "" {
		return value, true, nil
	}
	if e.currentMode() == ModeHMAC {
		return "", false, nil
	}
	if e.vault == nil {
		return "", false, &CoreError{Kind: ErrConfigInvalid, Column: column, Err: errors.New("vault not configured")}
	}
	original, ok, err := e.vault.GetReverse(column, value)
	if err != nil {
		return "", false, e.classifyVaultErr(column, err)
	}
	return original, ok, nil
}

func (e *Engine) currentMode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

func (e *Engine) transformFor(column string, columnKey []byte, value string, det detect.Result, attempt int) (string, error) {
	switch e.currentMode() {
	case ModeFake:
		return transform.ApplyGenericFake(columnKey, value), nil
	case ModeFPE:
		return transform.ApplyGenericFPE(columnKey, []byte(column), value), nil
	case ModeHybrid:
		if !hybridFPETypes[det.Type] {
			return e.applyHybridFake(columnKey, column, value, det)
		}
		fallthrough
	default:
		req := transform.Request{
			ColumnKey:       columnKey,
			DomainHMAC:      e.schedule.DomainHMAC,
			Column:          column,
			Value:           value,
			Type:            det.Type,
			Params:          det.Params,
			PreserveDomains: e.preserveDomains,
			RetryCounter:    attempt,
		}
		return transform.Apply(req)
	}
}

func (e *Engine) applyHybridFake(columnKey []byte, column, value string, det detect.Result) (string, error) {
	req := transform.Request{
		ColumnKey:       columnKey,
		DomainHMAC:      e.schedule.DomainHMAC,
		Column:          column,
		Value:           value,
		Type:            det.Type,
		Params:          det.Params,
		PreserveDomains: e.preserveDomains,
	}
	return transform.Apply(req)
}

// detectorFor returns the cached detector result for column, populating
// the cache (and the column's key) on first access.
func (e *Engine) detectorFor(column, value string) detect.Result {
	e.mu.RLock()
	if c, ok := e.columns[column]; ok {
		e.mu.RUnlock()
		return c.detector
	}
	e.mu.RUnlock()

	sample := []string{value}
	if e.sampler != nil {
		if s := e.sampler(column); len(s) > 0 {
			sample = s
		}
	}
	result := detect.Detect(column, sample)

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.columns[column]; ok {
		return c.detector
	}
	e.columns[column] = &columnCache{key: e.schedule.ColumnKey(column), detector: result}
	return result
}

func (e *Engine) classifyVaultErr(column string, err error) *CoreError {
	if errors.Is(err, vaultstore.ErrAuth) {
		return &CoreError{Kind: ErrVaultAuth, Column: column, Err: err}
	}
	return &CoreError{Kind: ErrVaultIO, Column: column, Err: err}
}

// recoverFormatUnparseable implements the FormatUnparseable row of the
// error table (spec §7): an email/date/IBAN/credit-card cell that doesn't
// parse as its detected type falls back to the free_text renderer rather than
// failing the cell, and the recovery is logged as a warning.
func (e *Engine) recoverFormatUnparseable(column string, columnKey []byte, value string, cause error) string {
	logger.Warn("engine: column %q: format unparseable, falling back to free_text rendering: %v", column, cause)

	req := transform.Request{
		ColumnKey:       columnKey,
		DomainHMAC:      e.schedule.DomainHMAC,
		Column:          column,
		Value:           value,
		Type:            detect.FreeText,
		PreserveDomains: e.preserveDomains,
	}
	out, err := transform.Apply(req)
	if err != nil {
		// transformFreeText never itself fails; this is only a backstop.
		return transform.ApplyGenericFake(columnKey, value)
	}
	return out
}

func (e *Engine) handleTransformErr(column, value string, err error) (string, error) {
	return e.fail(&CoreError{Kind: ErrVaultIO, Column: column, Err: err}, value)
}

// fail applies the strict/lenient policy (spec §7): in lenient mode,
// unrecoverable errors return the original cell unchanged; VaultAuth is
// always surfaced since it indicates the whole run's key material is
// wrong, not just this cell.
func (e *Engine) fail(cerr *CoreError, original string) (string, error) {
	if !e.strict && cerr.Kind != ErrVaultAuth {
		return original, nil
	}
	return "", cerr
}

// ColumnProfile is one entry of RunProfile's columns array (spec §6).
type ColumnProfile struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Confidence float64        `json:"confidence"`
	Params     map[string]any `json:"params"`
}

// RunProfileDoc is the JSON document spec §6 describes as "Anonymization
// parameters serialized per run."
type RunProfileDoc struct {
	Mode        string          `json:"mode"`
	Profile     string          `json:"profile"`
	SeedPresent bool            `json:"seed_present"`
	Columns     []ColumnProfile `json:"columns"`
}

// RunProfile snapshots the engine's current mode and every column
// detector decision made so far, for the caller to persist or display.
func (e *Engine) RunProfile() RunProfileDoc {
	e.mu.RLock()
	defer e.mu.RUnlock()

	doc := RunProfileDoc{
		Mode:        string(e.mode),
		Profile:     e.profile,
		SeedPresent: e.seedPresent,
	}
	for name, c := range e.columns {
		params := map[string]any{}
		if c.detector.Params.DateTemplate != "" {
			params["date_template"] = c.detector.Params.DateTemplate
		}
		if c.detector.Params.PhoneSepStyle != "" {
			params["phone_separator"] = c.detector.Params.PhoneSepStyle
		}
		doc.Columns = append(doc.Columns, ColumnProfile{
			Name:       name,
			Type:       string(c.detector.Type),
			Confidence: c.detector.Confidence,
			Params:     params,
		})
	}
	return doc
}
