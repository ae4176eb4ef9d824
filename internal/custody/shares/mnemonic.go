package shares

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// NewMnemonic draws 256 bits of entropy and returns the BIP39 mnemonic
// phrase a vault operator writes down once during the master-key ceremony.
// The entropy itself is never returned or persisted.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to draw mnemonic entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to encode mnemonic: %w", err)
	}
	return mnemonic, nil
}

// SeedFromMnemonic derives the 64-byte BIP32 seed AccountSetup/
// DeriveMasterLocal expect from a mnemonic and optional passphrase, per
// BIP39's PBKDF2-HMAC-SHA512 seed derivation. The seed yields the master
// tweak and chain code every party adds to the shares GenerateShares drew
// independently of it; the mnemonic itself must never be persisted past
// this ceremony.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid BIP39 mnemonic")
	}
	return bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
}
