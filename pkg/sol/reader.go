package sol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/SaitamaCoderVN/d2d-treasury/utils/pkg/retry"
)

// BalanceRPC is the subset of the Solana RPC client the reader needs.
type BalanceRPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetBalanceResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment solanarpc.CommitmentType) (uint64, error)
}

// BalanceReader reads finalized lamport balances for the vault accounts.
type BalanceReader interface {
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
	RentExemptMinimum(ctx context.Context, dataSize uint64) (uint64, error)
}

// Reader is a BalanceReader over a Solana JSON-RPC endpoint. RPC calls are
// retried with backoff since public endpoints rate-limit aggressively.
type Reader struct {
	rpc   BalanceRPC
	retry retry.Config
}

// NewReader builds a reader for the given RPC endpoint URL.
func NewReader(rpcURL string) *Reader {
	return &Reader{
		rpc:   solanarpc.New(rpcURL),
		retry: retry.DefaultConfig(),
	}
}

// NewReaderWithRPC builds a reader over an existing RPC client.
func NewReaderWithRPC(rpc BalanceRPC) *Reader {
	return &Reader{
		rpc:   rpc,
		retry: retry.DefaultConfig(),
	}
}

func (r *Reader) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var lamports uint64
	err := retry.Do(ctx, r.retry, func() error {
		out, err := r.rpc.GetBalance(ctx, account, solanarpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		lamports = out.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for %s: %w", account, err)
	}
	return lamports, nil
}

func (r *Reader) RentExemptMinimum(ctx context.Context, dataSize uint64) (uint64, error) {
	var minimum uint64
	err := retry.Do(ctx, r.retry, func() error {
		out, err := r.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, solanarpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		minimum = out
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get rent exempt minimum: %w", err)
	}
	return minimum, nil
}
