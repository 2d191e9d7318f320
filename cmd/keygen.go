package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stealthguard/anonycore/internal/config"
)

// exportedKeyFile is the JSON document described in spec §6: "Exported
// decryption key file (when no password used)". KeyID is a random
// identifier, not derived from the key itself, so a key file can be
// referenced in logs or support tickets without exposing key material.
type exportedKeyFile struct {
	Version   int    `json:"version"`
	KeyID     string `json:"key_id"`
	Key       string `json:"key"`
	Algorithm string `json:"algorithm"`
	CreatedAt string `json:"created_at"`
}

// NewKeygenCommand generates and exports the seed and/or vault key
// material a fresh vault needs (spec §3: "if absent, a process-random
// 32-byte value is generated and exported").
func NewKeygenCommand() *cobra.Command {
	var force bool

	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate and export seed and vault key material",
		Long: `Generates a fresh random seed (for master-key derivation) and a fresh
random vault key (for vault value encryption), and writes both as JSON
key files under the configured data directory.

Run this once before the first anonymize invocation against a new
vault. Losing the exported vault key makes the vault's contents
permanently unrecoverable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(force)
		},
	}

	keygenCmd.Flags().BoolVar(&force, "force", false, "overwrite existing key files")
	return keygenCmd
}

func runKeygen(force bool) error {
	cfg := config.Get()

	if !force {
		if _, err := os.Stat(cfg.Keying.ExportedSeed); err == nil {
			return fmt.Errorf("seed file already exists: %s (use --force to overwrite)", cfg.Keying.ExportedSeed)
		}
		if _, err := os.Stat(cfg.Vault.KeyFile); err == nil {
			return fmt.Errorf("vault key file already exists: %s (use --force to overwrite)", cfg.Vault.KeyFile)
		}
	}

	seed := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return fmt.Errorf("generate seed: %w", err)
	}
	vaultKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, vaultKey); err != nil {
		return fmt.Errorf("generate vault key: %w", err)
	}

	if err := writeKeyFile(cfg.Keying.ExportedSeed, seed); err != nil {
		return fmt.Errorf("write seed file: %w", err)
	}
	if err := writeKeyFile(cfg.Vault.KeyFile, vaultKey); err != nil {
		return fmt.Errorf("write vault key file: %w", err)
	}

	fmt.Printf("Seed exported:      %s\n", cfg.Keying.ExportedSeed)
	fmt.Printf("Vault key exported: %s\n", cfg.Vault.KeyFile)
	fmt.Println("Keep both files secure; losing the vault key makes the vault unrecoverable.")
	return nil
}

func writeKeyFile(path string, key []byte) error {
	doc := exportedKeyFile{
		Version:   1,
		KeyID:     uuid.New().String(),
		Key:       base64.StdEncoding.EncodeToString(key),
		Algorithm: "AES-256-GCM",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc exportedKeyFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse key file %s: %w", path, err)
	}
	key, err := base64.StdEncoding.DecodeString(doc.Key)
	if err != nil {
		return nil, fmt.Errorf("decode key in %s: %w", path, err)
	}
	return key, nil
}
