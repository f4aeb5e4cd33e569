package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/store"
	storetesting "github.com/SaitamaCoderVN/d2d-treasury/pkg/store/testing"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/treasury"
	treasurytesting "github.com/SaitamaCoderVN/d2d-treasury/utils/pkg/testing"
)

var sharedDB *storetesting.DB

func TestMain(m *testing.M) {
	log := treasurytesting.NewLogger()

	var err error
	sharedDB, err = storetesting.NewDB(context.Background(), log, nil)
	if err != nil {
		log.Error("failed to start PostgreSQL container", "error", err)
		os.Exit(1)
	}

	code := m.Run()

	sharedDB.Close()
	os.Exit(code)
}

// testStore returns a Store bound to a fresh migrated database, plus the
// pool for raw assertions against the schema.
func testStore(t *testing.T) (*store.Store, *pgxpool.Pool) {
	t.Helper()

	pool := storetesting.NewTestPool(t, sharedDB)
	s, err := store.New(store.Config{
		Logger: treasurytesting.NewLogger(),
		Pool:   pool,
	})
	require.NoError(t, err)
	return s, pool
}

var (
	testAdmin     = solana.MustPublicKeyFromBase58("11111111111111111111111111111112")
	testDevWallet = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	testBackerA   = solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	testDeveloper = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	testEphemeral = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	testProgramID = solana.MustPublicKeyFromBase58("KeccakSecp256k11111111111111111111111111111")
)

var testStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

const sol = uint64(treasury.LamportsPerSOL)

func testHash(b byte) treasury.ProgramHash {
	var h treasury.ProgramHash
	for i := range h {
		h[i] = b
	}
	return h
}

// stamp assigns sequence numbers and IDs the way the engine does before a
// commit, continuing from *next.
func stamp(m *treasury.Mutation, next *uint64) {
	for i := range m.Events {
		*next++
		m.Events[i].Seq = *next
		m.Events[i].ID = uuid.New()
	}
}

// commitOp stamps and commits the mutation, then applies it to the state.
func commitOp(t *testing.T, s *store.Store, state *treasury.State, m *treasury.Mutation, next *uint64) {
	t.Helper()

	stamp(m, next)
	require.NoError(t, s.CommitMutation(t.Context(), m))
	state.Apply(m)
}
