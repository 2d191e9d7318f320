package cmd

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/stealthguard/anonycore/internal/config"
	"github.com/stealthguard/anonycore/internal/engine"
	"github.com/stealthguard/anonycore/internal/keyschedule"
	"github.com/stealthguard/anonycore/internal/vaultstore"
)

// openSchedule derives the key schedule from whatever seed file has been
// exported, or a fresh random master key if none has (spec §3).
func openSchedule() (*keyschedule.Schedule, bool, error) {
	cfg := config.Get()

	seedPresent := false
	var seed []byte
	if data, err := readKeyFile(cfg.Keying.ExportedSeed); err == nil {
		seed = data
		seedPresent = true
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("read seed file: %w", err)
	}

	schedule, err := keyschedule.New(seed, cfg.Keying.PBKDF2Iters)
	if err != nil {
		return nil, false, fmt.Errorf("derive key schedule: %w", err)
	}
	return schedule, seedPresent, nil
}

// openVault opens the vault file using the exported vault key, deriving
// the HMAC lookup keys from schedule's master key (spec §4.1 rationale:
// vault encryption is independent of the anonymization master key).
func openVault(schedule *keyschedule.Schedule) (*vaultstore.Vault, error) {
	cfg := config.Get()

	vaultKey, err := readKeyFile(cfg.Vault.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read vault key file (run `anonycore keygen` first): %w", err)
	}

	salt := make([]byte, cfg.Vault.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate vault salt: %w", err)
	}

	vault, err := vaultstore.Open(cfg.Vault.Path, schedule.MasterKey(), vaultKey, salt, cfg.Vault.PBKDF2Iters)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return vault, nil
}

// buildEngine wires config, keyschedule and vaultstore into a ready
// Engine, mirroring the construction order the Coordinator's control
// flow assumes (spec §2): key schedule first, vault second, engine
// last. Mode "hmac" never needs the vault; every other mode does.
func buildEngine(mode engine.Mode) (*engine.Engine, func() error, error) {
	cfg := config.Get()

	schedule, seedPresent, err := openSchedule()
	if err != nil {
		return nil, nil, err
	}

	if mode == engine.ModeHMAC {
		eng, err := engine.New(schedule, nil, engine.Options{
			Mode:              mode,
			Strict:            cfg.Anonymize.Strict,
			PreserveDomains:   cfg.Anonymize.PreserveDomains,
			Profile:           cfg.Anonymize.Profile,
			ExcludedColumns:   cfg.Anonymize.ExcludedColumns,
			MaxCollisionRetry: cfg.Anonymize.MaxCollisionRetry,
			SeedPresent:       seedPresent,
		})
		return eng, func() error { return nil }, err
	}

	vault, err := openVault(schedule)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(schedule, vault, engine.Options{
		Mode:              mode,
		Strict:            cfg.Anonymize.Strict,
		PreserveDomains:   cfg.Anonymize.PreserveDomains,
		Profile:           cfg.Anonymize.Profile,
		ExcludedColumns:   cfg.Anonymize.ExcludedColumns,
		MaxCollisionRetry: cfg.Anonymize.MaxCollisionRetry,
		SeedPresent:       seedPresent,
	})
	if err != nil {
		vault.Close()
		return nil, nil, err
	}

	return eng, vault.Close, nil
}

func parseMode(s string) engine.Mode {
	switch engine.Mode(s) {
	case engine.ModeFake, engine.ModeFPE, engine.ModeHMAC, engine.ModeHybrid:
		return engine.Mode(s)
	default:
		return engine.ModeHybrid
	}
}
