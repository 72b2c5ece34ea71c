package hsm

import (
	"errors"
	"fmt"

	"github.com/hashicorp/vault/shamir"
)

// Provisioning installs a management key that exists nowhere but in the
// SetupResult. These helpers split it into Shamir shares for custodian
// escrow and recombine them for recovery. The key itself is never written
// to persistent storage.

// SplitManagementKey splits a management key into shares, of which
// threshold are required to reconstruct it.
func SplitManagementKey(managementKey []byte, shares, threshold int) ([][]byte, error) {
	if len(managementKey) != ManagementKeyLen {
		return nil, fmt.Errorf("management key must be %d bytes, got %d", ManagementKeyLen, len(managementKey))
	}
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if shares < threshold {
		return nil, errors.New("share count must be at least the threshold")
	}

	parts, err := shamir.Split(managementKey, shares, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split management key: %w", err)
	}
	return parts, nil
}

// CombineManagementKey reconstructs a management key from at least a
// threshold of shares.
func CombineManagementKey(shares [][]byte) ([]byte, error) {
	key, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	if len(key) != ManagementKeyLen {
		return nil, fmt.Errorf("combined secret is %d bytes, expected %d; wrong or insufficient shares", len(key), ManagementKeyLen)
	}
	return key, nil
}
