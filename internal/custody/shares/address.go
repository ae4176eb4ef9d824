package shares

import "fmt"

// DeriveAddressShare derives the signing share for one receive/change
// address, i.e. the two non-hardened levels below the account xpub:
// account' / change / index. Both levels are local — no guardian
// interaction — which is the BIP44 account setup's entire point (spec.md
// §4.2): a one-time distributed ceremony to the account level, then
// unlimited local address enumeration from every guardian's own share plus
// the public account xpub.
func DeriveAddressShare(accountShare Share, accountXPub ExtendedPubKey, change uint32, index uint32) (Share, ExtendedPubKey, error) {
	if change != 0 && change != 1 {
		return Share{}, ExtendedPubKey{}, fmt.Errorf("change must be 0 (external) or 1 (internal), got %d", change)
	}

	changeShare, changeChainCode, err := DeriveNonHardenedChildShare(accountShare, accountXPub.PubKey, accountXPub.ChainCode, change)
	if err != nil {
		return Share{}, ExtendedPubKey{}, fmt.Errorf("change-level derivation: %w", err)
	}
	changePubKey, _, err := DeriveNonHardenedChildPubKey(accountXPub.PubKey, accountXPub.ChainCode, change)
	if err != nil {
		return Share{}, ExtendedPubKey{}, fmt.Errorf("change-level pubkey derivation: %w", err)
	}
	changeXPub := ExtendedPubKey{
		PubKey:            changePubKey,
		ChainCode:         changeChainCode,
		Depth:             accountXPub.Depth + 1,
		ParentFingerprint: fingerprint(accountXPub.PubKey),
		ChildNumber:       change,
	}

	addressShare, _, err := DeriveNonHardenedChildShare(changeShare, changeXPub.PubKey, changeXPub.ChainCode, index)
	if err != nil {
		return Share{}, ExtendedPubKey{}, fmt.Errorf("address-level derivation: %w", err)
	}

	return addressShare, changeXPub, nil
}

// DeriveAddressPubKey computes the address-level public key corresponding
// to DeriveAddressShare, for verifying Testable Property 2 (non-hardened
// derivation consistency) without needing every party's share.
func DeriveAddressPubKey(accountXPub ExtendedPubKey, change uint32, index uint32) ([33]byte, error) {
	changePubKey, changeChainCode, err := DeriveNonHardenedChildPubKey(accountXPub.PubKey, accountXPub.ChainCode, change)
	if err != nil {
		return [33]byte{}, fmt.Errorf("change-level pubkey derivation: %w", err)
	}
	addrPubKey, _, err := DeriveNonHardenedChildPubKey(changePubKey, changeChainCode, index)
	if err != nil {
		return [33]byte{}, fmt.Errorf("address-level pubkey derivation: %w", err)
	}
	return addrPubKey, nil
}
