// Package model defines the coordinator's persisted record types: Guardian,
// Vault, Transaction (the signing state machine, carrying each round's
// artifact in its own field), and DecimalBig, per SPEC_FULL.md §5.
package model

import (
	"encoding/json"
	"fmt"
	"math/big"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// DecimalBig wraps a big integer so every round scalar (k, r, s_i, s) and
// other 256-bit field value round-trips through persistence and JSON as a
// canonical decimal string, never a binary integer type that would
// silently truncate at 64 bits (spec.md §9 "Re-architecting dynamic
// typing", §4.5 "Large-integer persistence").
type DecimalBig struct {
	V *big.Int
}

// NewDecimalBig wraps x. A nil x is preserved as the zero value of
// DecimalBig (MarshalJSON/MarshalBSON emit "0").
func NewDecimalBig(x *big.Int) DecimalBig {
	if x == nil {
		return DecimalBig{}
	}
	return DecimalBig{V: new(big.Int).Set(x)}
}

func (d DecimalBig) String() string {
	if d.V == nil {
		return "0"
	}
	return d.V.String()
}

func (d DecimalBig) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DecimalBig) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("DecimalBig: %w", err)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("DecimalBig: %q is not a canonical base-10 integer", s)
	}
	d.V = v
	return nil
}

func (d DecimalBig) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(d.String())
}

func (d *DecimalBig) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var s string
	if err := bson.UnmarshalValue(t, data, &s); err != nil {
		return fmt.Errorf("DecimalBig: %w", err)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("DecimalBig: %q is not a canonical base-10 integer", s)
	}
	d.V = v
	return nil
}
