package treasury

import (
	"math"
	"math/big"
	"time"

	bin "github.com/gagliardetto/binary"
)

var precisionBig = big.NewInt(Precision)

func u128FromBig(v *big.Int) (bin.Uint128, error) {
	if v.Sign() < 0 || v.BitLen() > 128 {
		return bin.Uint128{}, ErrMathOverflow
	}
	lo := new(big.Int).And(v, new(big.Int).SetUint64(^uint64(0))).Uint64()
	hi := new(big.Int).Rsh(v, 64).Uint64()
	return bin.Uint128{Lo: lo, Hi: hi}, nil
}

// accrueRewardPerShare advances the accumulator by fee×Precision/total.
// The caller guarantees total > 0.
func accrueRewardPerShare(rps bin.Uint128, fee, totalDeposited uint64) (bin.Uint128, error) {
	if totalDeposited == 0 {
		return bin.Uint128{}, ErrDivisionByZero
	}
	delta := new(big.Int).SetUint64(fee)
	delta.Mul(delta, precisionBig)
	delta.Div(delta, new(big.Int).SetUint64(totalDeposited))
	next := new(big.Int).Add(rps.BigInt(), delta)
	return u128FromBig(next)
}

// rewardDebt is the settlement snapshot deposited×rps, kept at full
// 128-bit precision.
func rewardDebt(deposited uint64, rps bin.Uint128) (bin.Uint128, error) {
	product := new(big.Int).SetUint64(deposited)
	product.Mul(product, rps.BigInt())
	return u128FromBig(product)
}

// accruedRewards is the unsettled entitlement (deposited×rps − debt)/Precision
// in lamports. The debt snapshot never exceeds the accumulated product for a
// correctly settled deposit, so a negative intermediate reports corruption.
func accruedRewards(deposited uint64, rps, debt bin.Uint128) (uint64, error) {
	product := new(big.Int).SetUint64(deposited)
	product.Mul(product, rps.BigInt())
	product.Sub(product, debt.BigInt())
	if product.Sign() < 0 {
		return 0, ErrMathOverflow
	}
	product.Div(product, precisionBig)
	if product.BitLen() > 64 {
		return 0, ErrMathOverflow
	}
	return product.Uint64(), nil
}

func addU64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

func subU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrMathOverflow
	}
	return a - b, nil
}

func mulU64(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/a != b {
		return 0, ErrMathOverflow
	}
	return product, nil
}

// validAmount bounds every externally supplied lamport amount.
func validAmount(amount uint64) error {
	if amount == 0 || amount > MaxAmount {
		return ErrInvalidAmount
	}
	return nil
}

// subscriptionExtension converts whole 30-day months into a duration.
// The seconds product is checked before widening to nanoseconds so a
// huge month count cannot wrap time.Duration.
func subscriptionExtension(months uint32) (time.Duration, error) {
	seconds, err := mulU64(uint64(months), SecondsPerMonth)
	if err != nil {
		return 0, err
	}
	if seconds > math.MaxInt64/uint64(time.Second) {
		return 0, ErrMathOverflow
	}
	return time.Duration(seconds) * time.Second, nil
}
