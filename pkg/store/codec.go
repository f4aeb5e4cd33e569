package store

import (
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/jackc/pgx/v5/pgtype"
)

var maxU64Big = new(big.Int).SetUint64(^uint64(0))

// numericFromU128 renders a Uint128 as a NUMERIC parameter. NUMERIC(39,0)
// holds the full 128-bit range with room to spare.
func numericFromU128(v bin.Uint128) pgtype.Numeric {
	return pgtype.Numeric{Int: v.BigInt(), Valid: true}
}

// numericScanner scans a NUMERIC column and converts it back to a Uint128.
// The embedded pgtype.Numeric satisfies pgx's scan interfaces.
type numericScanner struct {
	pgtype.Numeric
}

func (n *numericScanner) Uint128() (bin.Uint128, error) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite {
		return bin.Uint128{}, fmt.Errorf("numeric is not a finite value")
	}
	v := new(big.Int).Set(n.Int)
	// Integer columns scan with Exp == 0 unless the value carries trailing
	// zeros, which postgres may shift into the exponent.
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		return bin.Uint128{}, fmt.Errorf("numeric has fractional digits")
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return bin.Uint128{}, fmt.Errorf("numeric %s out of uint128 range", v)
	}
	return bin.Uint128{
		Lo: new(big.Int).And(v, maxU64Big).Uint64(),
		Hi: new(big.Int).Rsh(v, 64).Uint64(),
	}, nil
}
