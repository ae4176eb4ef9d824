package shares

import (
	"fmt"

	"github.com/arcsign/custody/internal/custody/curve"
)

const (
	bip44Purpose = 44
)

func sumPubKeys(all []Share) curve.CurvePoint {
	acc := curve.Infinity()
	for _, s := range all {
		acc = acc.Add(curve.ScalarBaseMult(s.Secret))
	}
	return acc
}

type hdLevel struct {
	shares    []Share
	chainCode [32]byte
	pubKey    curve.CurvePoint
}

func hardenedStep(level hdLevel, index uint32) (hdLevel, error) {
	parentPubKeyCompressed := level.pubKey.Compressed()

	childShares := make([]Share, len(level.shares))
	var commitments [][32]byte
	for i, s := range level.shares {
		cs, err := DeriveHardenedChildShare(s, level.chainCode, index)
		if err != nil {
			return hdLevel{}, fmt.Errorf("party %d: %w", s.PartyID, err)
		}
		childShares[i] = cs
		commitments = append(commitments, DeriveHardenedChainCode(parentPubKeyCompressed, level.chainCode, index))
	}
	chainCode, err := AgreeChainCode(commitments)
	if err != nil {
		return hdLevel{}, fmt.Errorf("hardened step %d: %w", index, err)
	}

	return hdLevel{
		shares:    childShares,
		chainCode: chainCode,
		pubKey:    sumPubKeys(childShares),
	}, nil
}

// AccountSetup walks m -> m/44' -> m/44'/coin' -> m/44'/coin'/account' as
// three distributed hardened steps, per spec.md §4.2 "BIP44 account setup",
// and assembles the account-level ExtendedPubKey. It is the trusted one-time
// setup ceremony: every guardian's share is visible to this function
// because it models the initial dealer-assisted distribution (the same
// trust assumption GenerateShares already makes for the master key); no
// later runtime code path ever has access to more than one party's share.
func AccountSetup(allShares []Share, seed []byte, coinType uint32, accountIndex uint32) ([]Share, ExtendedPubKey, error) {
	if len(allShares) < 2 {
		return nil, ExtendedPubKey{}, fmt.Errorf("need at least 2 shares, got %d", len(allShares))
	}
	n := allShares[0].TotalParties
	if len(allShares) != n {
		return nil, ExtendedPubKey{}, fmt.Errorf("expected %d shares, got %d", n, len(allShares))
	}

	masterShares := make([]Share, n)
	var masterChainCode [32]byte
	for i, s := range allShares {
		ms, cc, err := DeriveMasterLocal(s, seed)
		if err != nil {
			return nil, ExtendedPubKey{}, fmt.Errorf("party %d master derivation: %w", s.PartyID, err)
		}
		masterShares[i] = ms
		masterChainCode = cc
	}

	level := hdLevel{
		shares:    masterShares,
		chainCode: masterChainCode,
		pubKey:    sumPubKeys(masterShares),
	}

	purposeLevel, err := hardenedStep(level, bip44Purpose)
	if err != nil {
		return nil, ExtendedPubKey{}, fmt.Errorf("purpose derivation: %w", err)
	}

	coinLevel, err := hardenedStep(purposeLevel, coinType)
	if err != nil {
		return nil, ExtendedPubKey{}, fmt.Errorf("coin-type derivation: %w", err)
	}

	accountLevel, err := hardenedStep(coinLevel, accountIndex)
	if err != nil {
		return nil, ExtendedPubKey{}, fmt.Errorf("account derivation: %w", err)
	}
	parentFPAfterAccount := fingerprint(coinLevel.pubKey.Compressed())

	xpub := ExtendedPubKey{
		PubKey:            accountLevel.pubKey.Compressed(),
		ChainCode:         accountLevel.chainCode,
		Depth:             3,
		ParentFingerprint: parentFPAfterAccount,
		ChildNumber:       accountIndex + hardenedOffset,
	}

	return accountLevel.shares, xpub, nil
}
