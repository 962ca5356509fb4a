package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hashBytes(data), nil
}

// VerifyFingerprint checks that the file cfg was loaded from is unchanged.
func VerifyFingerprint(cfg *Config) error {
	actual, err := ComputeBlake3Hash(cfg.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != cfg.Fingerprint {
		return fmt.Errorf("config %s changed since load: expected %s, got %s", cfg.SourcePath, cfg.Fingerprint, actual)
	}
	return nil
}

func hashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}
