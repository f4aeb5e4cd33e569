package treasury

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

const sol = uint64(LamportsPerSOL)

var (
	testAdmin     = solana.MustPublicKeyFromBase58("11111111111111111111111111111112")
	testDevWallet = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	testBackerA   = solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	testBackerB   = solana.MustPublicKeyFromBase58("Vote222222222222222222222222222222222222222")
	testDeveloper = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	testDest      = solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")
	testEphemeral = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	testProgramID = solana.MustPublicKeyFromBase58("KeccakSecp256k11111111111111111111111111111")
)

var testStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func testHash(b byte) ProgramHash {
	var h ProgramHash
	for i := range h {
		h[i] = b
	}
	return h
}

// initializedState returns a fresh ledger with the pool created.
func initializedState(t *testing.T) *State {
	t.Helper()
	s := NewState()
	m, err := s.Initialize(testStart, testAdmin, testDevWallet, 500)
	require.NoError(t, err)
	s.Apply(m)
	return s
}

// stakedState returns a ledger where backer A has amount lamports staked.
func stakedState(t *testing.T, amount uint64) *State {
	t.Helper()
	s := initializedState(t)
	m, err := s.StakeSOL(testStart, testBackerA, amount, 0)
	require.NoError(t, err)
	s.Apply(m)
	return s
}

// pendingRequestState returns a ledger with one PendingDeployment request
// for testDeveloper under the given hash, backed by a 100 SOL stake.
func pendingRequestState(t *testing.T, hash ProgramHash) *State {
	t.Helper()
	s := stakedState(t, 100*sol)
	m, err := s.CreateDeployRequest(testStart, testAdmin, testDeveloper, hash, 5*sol, 3*sol, 1, 10*sol)
	require.NoError(t, err)
	s.Apply(m)
	return s
}
