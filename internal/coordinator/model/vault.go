package model

// CoinType restricts a vault to one of the two supported chains (spec.md
// §1 Purpose & Scope — Bitcoin/Ethereum only).
type CoinType string

const (
	CoinBitcoin  CoinType = "Bitcoin"
	CoinEthereum CoinType = "Ethereum"
)

// VaultStatus is the vault lifecycle (spec.md §3 "Vault record").
type VaultStatus string

const (
	VaultSetup     VaultStatus = "Setup"
	VaultActive    VaultStatus = "Active"
	VaultSuspended VaultStatus = "Suspended"
	VaultArchived  VaultStatus = "Archived"
)

// Vault is the custody group record: a coin type, threshold, and the
// account-level xpub every address in the vault is derived from. Invariant:
// Threshold == TotalGuardians (this spec has no partial-threshold
// signing — every guardian signs every transaction).
type Vault struct {
	VaultID         string      `bson:"_id" json:"vault_id"`
	Name            string      `bson:"name" json:"name"`
	CoinType        CoinType    `bson:"coin_type" json:"coin_type"`
	Threshold       int         `bson:"threshold" json:"threshold"`
	TotalGuardians  int         `bson:"total_guardians" json:"total_guardians"`
	AccountIndex    uint32      `bson:"account_index" json:"account_index"`
	Status          VaultStatus `bson:"status" json:"status"`
	XPubCompressed  string      `bson:"xpub_compressed,omitempty" json:"xpub_compressed,omitempty"`
	XPubChainCode   string      `bson:"xpub_chain_code,omitempty" json:"xpub_chain_code,omitempty"`
	GuardiansJoined int         `bson:"guardians_joined" json:"guardians_joined"`
	GuardianIDs     []string    `bson:"guardian_ids" json:"guardian_ids"`
	TxCount         int64       `bson:"tx_count" json:"tx_count"`
}

// ReadyToActivate reports whether every guardian slot has been filled.
func (v *Vault) ReadyToActivate() bool {
	return v.Status == VaultSetup && v.GuardiansJoined == v.TotalGuardians
}

// CanSign reports whether the vault may accept new signing transactions.
func (v *Vault) CanSign() bool {
	return v.Status == VaultActive
}
