package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/engine"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/sol"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/store"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/treasury"
	treasurytesting "github.com/SaitamaCoderVN/d2d-treasury/utils/pkg/testing"
)

const lamportsPerSOL = uint64(treasury.LamportsPerSOL)

var (
	testAdmin     = solana.MustPublicKeyFromBase58("11111111111111111111111111111112")
	testDevWallet = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	testBacker    = solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	testDeveloper = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	testDest      = solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")
	testEphemeral = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	testProgramID = solana.MustPublicKeyFromBase58("KeccakSecp256k11111111111111111111111111111")

	testStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

func testVaults() sol.VaultSet {
	return sol.VaultSet{
		Treasury: solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
		Reward:   solana.MustPublicKeyFromBase58("SysvarS1otHashes111111111111111111111111111"),
		Platform: solana.MustPublicKeyFromBase58("SysvarStakeHistory1111111111111111111111111"),
	}
}

func testHash(b byte) treasury.ProgramHash {
	var h treasury.ProgramHash
	h[0] = b
	return h
}

type mockStore struct {
	mu      sync.Mutex
	commits []*treasury.Mutation
}

func (m *mockStore) CommitMutation(_ context.Context, mut *treasury.Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, mut)
	return nil
}

type mockEvents struct {
	mu         sync.Mutex
	queries    []store.EventQuery
	eventsFunc func(ctx context.Context, q store.EventQuery) ([]store.EventRecord, error)
}

func (m *mockEvents) Events(ctx context.Context, q store.EventQuery) ([]store.EventRecord, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if m.eventsFunc != nil {
		return m.eventsFunc(ctx, q)
	}
	return nil, nil
}

func (m *mockEvents) lastQuery(t *testing.T) store.EventQuery {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.queries)
	return m.queries[len(m.queries)-1]
}

type mockPinger struct {
	mu  sync.Mutex
	err error
}

func (m *mockPinger) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *mockPinger) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type mockReady struct{ ready bool }

func (m *mockReady) Ready() bool { return m.ready }

type testServer struct {
	srv    *Server
	events *mockEvents
	pinger *mockPinger
	ready  *mockReady
}

func newTestServer(t *testing.T, mutate func(cfg *Config)) *testServer {
	t.Helper()

	log := treasurytesting.NewLogger()
	eng, err := engine.New(engine.Config{
		Logger: log,
		Clock:  clockwork.NewFakeClockAt(testStart),
		Store:  &mockStore{},
		State:  treasury.NewState(),
	})
	require.NoError(t, err)

	ts := &testServer{
		events: &mockEvents{},
		pinger: &mockPinger{},
		ready:  &mockReady{ready: true},
	}
	cfg := Config{
		Logger:      log,
		ListenAddr:  "127.0.0.1:0",
		VersionInfo: VersionInfo{Version: "1.2.3", Commit: "abcdef0", Date: "2025-06-01"},
		Engine:      eng,
		Events:      ts.events,
		Pinger:      ts.pinger,
		Ready:       ts.ready,
		Vaults:      testVaults(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	ts.srv = srv
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	return ts.do(t, http.MethodGet, path, nil)
}

func (ts *testServer) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	return ts.do(t, http.MethodPost, path, body)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

type errorBody struct {
	Error string `json:"error"`
}

// initTreasury brings the ledger up with the test admin at 5% APY.
func initTreasury(t *testing.T, ts *testServer) {
	t.Helper()
	rec := ts.post(t, "/api/v1/initialize", initializeRequest{
		Admin:         testAdmin,
		DevWallet:     testDevWallet,
		InitialAPYBPS: 500,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
}

func stakeBacker(t *testing.T, ts *testServer, amount uint64) {
	t.Helper()
	rec := ts.post(t, "/api/v1/backers/"+testBacker.String()+"/stake", stakeRequest{
		AmountLamports:    amount,
		LockPeriodSeconds: 90 * 86_400,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
}

func TestServer_ConfigValidation(t *testing.T) {
	t.Parallel()

	eng, err := engine.New(engine.Config{
		Logger: treasurytesting.NewLogger(),
		Store:  &mockStore{},
		State:  treasury.NewState(),
	})
	require.NoError(t, err)

	valid := func() Config {
		return Config{
			Logger:     treasurytesting.NewLogger(),
			ListenAddr: "127.0.0.1:0",
			Engine:     eng,
			Events:     &mockEvents{},
			Pinger:     &mockPinger{},
		}
	}

	t.Run("requires logger", func(t *testing.T) {
		t.Parallel()
		cfg := valid()
		cfg.Logger = nil
		_, err := New(cfg)
		require.ErrorContains(t, err, "logger is required")
	})

	t.Run("requires listen addr", func(t *testing.T) {
		t.Parallel()
		cfg := valid()
		cfg.ListenAddr = ""
		_, err := New(cfg)
		require.ErrorContains(t, err, "listen addr is required")
	})

	t.Run("requires engine", func(t *testing.T) {
		t.Parallel()
		cfg := valid()
		cfg.Engine = nil
		_, err := New(cfg)
		require.ErrorContains(t, err, "engine is required")
	})

	t.Run("requires event source", func(t *testing.T) {
		t.Parallel()
		cfg := valid()
		cfg.Events = nil
		_, err := New(cfg)
		require.ErrorContains(t, err, "event source is required")
	})

	t.Run("requires pinger", func(t *testing.T) {
		t.Parallel()
		cfg := valid()
		cfg.Pinger = nil
		_, err := New(cfg)
		require.ErrorContains(t, err, "pinger is required")
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()
		cfg := valid()
		require.NoError(t, cfg.Validate())
		require.Equal(t, 10*time.Second, cfg.ReadHeaderTimeout)
		require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
		require.Equal(t, []string{"*"}, cfg.AllowedOrigins)
		require.Equal(t, rate.Every(time.Second), cfg.MutationRate)
		require.Equal(t, 10, cfg.MutationBurst)
	})
}

func TestServer_HealthAndVersion(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok\n", rec.Body.String())

	rec = ts.get(t, "/version")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[VersionInfo](t, rec)
	require.Equal(t, VersionInfo{Version: "1.2.3", Commit: "abcdef0", Date: "2025-06-01"}, info)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)
		rec := ts.get(t, "/readyz")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("store unreachable", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)
		ts.pinger.setErr(errors.New("connection refused"))
		rec := ts.get(t, "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Equal(t, "store unreachable\n", rec.Body.String())
	})

	t.Run("reconciler catching up", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)
		ts.ready.ready = false
		rec := ts.get(t, "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Equal(t, "reconciler not ready\n", rec.Body.String())
	})
}

func TestServer_InitializeAndPoolView(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	// The pool view 404s until the ledger is initialized.
	rec := ts.get(t, "/api/v1/pool")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.post(t, "/api/v1/initialize", initializeRequest{
		Admin:         testAdmin,
		DevWallet:     testDevWallet,
		InitialAPYBPS: 500,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	commit := decodeBody[commitResponse](t, rec)
	require.Equal(t, uint64(1), commit.Seq)
	require.Len(t, commit.Events, 1)
	require.Equal(t, treasury.EventTreasuryPoolInitialized, commit.Events[0].Type)
	require.NotEqual(t, uuid.Nil, commit.Events[0].ID)

	rec = ts.get(t, "/api/v1/pool")
	require.Equal(t, http.StatusOK, rec.Code)
	pool := decodeBody[poolView](t, rec)
	require.Equal(t, testAdmin, pool.Admin)
	require.Equal(t, testDevWallet, pool.DevWallet)
	require.Equal(t, uint64(500), pool.CurrentAPYBPS)
	require.Equal(t, "0", pool.RewardPerShare)
	require.Equal(t, testVaults().Treasury, pool.Vaults.Treasury)
	require.Equal(t, uint64(1), pool.LastSeq)
	require.False(t, pool.EmergencyPause)

	rec = ts.post(t, "/api/v1/initialize", initializeRequest{
		Admin:         testAdmin,
		DevWallet:     testDevWallet,
		InitialAPYBPS: 500,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, decodeBody[errorBody](t, rec).Error, "already initialized")
}

func TestServer_BackerFlow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	initTreasury(t, ts)
	stakeBacker(t, ts, 100*lamportsPerSOL)

	backerPath := "/api/v1/backers/" + testBacker.String()

	rec := ts.get(t, backerPath)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[backerView](t, rec)
	require.Equal(t, testBacker, view.Backer)
	require.Equal(t, 100*lamportsPerSOL, view.Deposited.Lamports)
	require.Equal(t, "100", view.Deposited.SOL)
	require.Zero(t, view.Claimable.Lamports)
	require.True(t, view.IsActive)

	// Crediting fee revenue makes the full amount claimable by the only
	// backer.
	rec = ts.post(t, "/api/v1/fees/credit", creditFeeRequest{
		Admin:             testAdmin,
		FeeRewardLamports: 4 * lamportsPerSOL,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	rec = ts.get(t, backerPath)
	view = decodeBody[backerView](t, rec)
	require.Equal(t, 4*lamportsPerSOL, view.Claimable.Lamports)
	require.Equal(t, "4", view.Claimable.SOL)

	rec = ts.post(t, backerPath+"/claim", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	commit := decodeBody[commitResponse](t, rec)
	require.Len(t, commit.Events, 1)
	require.Equal(t, treasury.EventClaimed, commit.Events[0].Type)

	rec = ts.get(t, backerPath)
	view = decodeBody[backerView](t, rec)
	require.Zero(t, view.Claimable.Lamports)
	require.Equal(t, 4*lamportsPerSOL, view.ClaimedTotal.Lamports)

	// Nothing left to claim.
	rec = ts.post(t, backerPath+"/claim", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.post(t, backerPath+"/unstake", unstakeRequest{AmountLamports: 200 * lamportsPerSOL})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.post(t, backerPath+"/unstake", unstakeRequest{AmountLamports: 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.get(t, "/api/v1/backers/"+testDest.String())
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.get(t, "/api/v1/backers/not-a-pubkey")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DeploymentLifecycle(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	initTreasury(t, ts)
	stakeBacker(t, ts, 100*lamportsPerSOL)

	hash := testHash(0xA1)
	base := "/api/v1/deployments/" + hash.String()

	rec := ts.post(t, "/api/v1/deployments", createDeploymentRequest{
		Admin:                  testAdmin,
		Developer:              testDeveloper,
		ProgramHash:            hash,
		ServiceFeeLamports:     5 * lamportsPerSOL,
		MonthlyFeeLamports:     3 * lamportsPerSOL,
		InitialMonths:          2,
		DeploymentCostLamports: 10 * lamportsPerSOL,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	rec = ts.get(t, base)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[deploymentView](t, rec)
	require.Equal(t, treasury.StatusPendingDeployment, view.Status)
	require.Equal(t, 5*lamportsPerSOL, view.ServiceFee.Lamports)
	require.Nil(t, view.EphemeralKey)
	require.Nil(t, view.DeployedProgramID)

	rec = ts.post(t, base+"/fund", fundRequest{
		Admin:        testAdmin,
		EphemeralKey: testEphemeral,
		CostLamports: 10 * lamportsPerSOL,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	rec = ts.get(t, base)
	view = decodeBody[deploymentView](t, rec)
	require.NotNil(t, view.EphemeralKey)
	require.Equal(t, testEphemeral, *view.EphemeralKey)
	require.Equal(t, treasury.FundedFromTreasury, view.FundedFrom)

	rec = ts.post(t, base+"/confirm-success", confirmSuccessRequest{
		Admin:             testAdmin,
		DeployedProgramID: testProgramID,
		RecoveredLamports: 2 * lamportsPerSOL,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	rec = ts.get(t, base)
	view = decodeBody[deploymentView](t, rec)
	require.Equal(t, treasury.StatusActive, view.Status)
	require.NotNil(t, view.DeployedProgramID)
	require.Equal(t, testProgramID, *view.DeployedProgramID)

	rec = ts.get(t, "/api/v1/deployments?status=Active")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[deploymentsResponse](t, rec)
	require.Equal(t, 1, list.Count)
	require.Equal(t, hash, list.Deployments[0].ProgramHash)

	rec = ts.get(t, "/api/v1/deployments?developer="+testDeveloper.String())
	list = decodeBody[deploymentsResponse](t, rec)
	require.Equal(t, 1, list.Count)

	rec = ts.get(t, "/api/v1/deployments?status=Launching")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.get(t, "/api/v1/developers/"+testDeveloper.String()+"/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[statsView](t, rec)
	require.Equal(t, uint64(1), stats.TotalDeploys)
	require.Equal(t, uint32(1), stats.ActiveSessions)

	// An active deployment cannot be cancelled.
	rec = ts.post(t, base+"/cancel", cancelRequest{Signer: testDeveloper})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.get(t, "/api/v1/deployments/"+testHash(0xEE).String())
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.get(t, "/api/v1/deployments/not-a-hash")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_AdminGuards(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	initTreasury(t, ts)

	rec := ts.post(t, "/api/v1/admin/pause", pauseRequest{Admin: testBacker, Paused: true})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.post(t, "/api/v1/admin/apy", apyRequest{Admin: testAdmin, APYBPS: 10_001})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.post(t, "/api/v1/admin/withdraw/platform", withdrawRequest{
		Admin:          testAdmin,
		AmountLamports: lamportsPerSOL,
		Reason:         "ops payout",
		Destination:    testDest,
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.post(t, "/api/v1/admin/pause", pauseRequest{Admin: testAdmin, Paused: true})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	// Everything but unpausing is gated while paused.
	rec = ts.post(t, "/api/v1/backers/"+testBacker.String()+"/stake", stakeRequest{
		AmountLamports: lamportsPerSOL,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, decodeBody[errorBody](t, rec).Error, "emergency pause")
}

func TestServer_SyncLiquidWithoutReader(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	initTreasury(t, ts)

	rec := ts.post(t, "/api/v1/admin/sync-liquid", syncLiquidRequest{Admin: testAdmin})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Events(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.events.eventsFunc = func(_ context.Context, q store.EventQuery) ([]store.EventRecord, error) {
		return []store.EventRecord{
			{Seq: 9, ID: uuid.New(), Type: treasury.EventSolStaked, At: testStart, Payload: json.RawMessage(`{"amount":1}`)},
			{Seq: 7, ID: uuid.New(), Type: treasury.EventSolStaked, At: testStart, Payload: json.RawMessage(`{"amount":2}`)},
		}, nil
	}

	rec := ts.get(t, "/api/v1/events?type=SolStaked&before=10&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, store.EventQuery{Type: treasury.EventSolStaked, Before: 10, Limit: 2}, ts.events.lastQuery(t))
	resp := decodeBody[eventsResponse](t, rec)
	require.Len(t, resp.Events, 2)
	require.Equal(t, uint64(7), resp.NextBefore)

	rec = ts.get(t, "/api/v1/events?before=yesterday")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.get(t, "/api/v1/events?limit=-3")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	ts.events.eventsFunc = func(context.Context, store.EventQuery) ([]store.EventRecord, error) {
		return nil, errors.New("connection reset")
	}
	rec = ts.get(t, "/api/v1/events")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_RateLimitsMutations(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, func(cfg *Config) {
		cfg.MutationRate = rate.Every(time.Hour)
		cfg.MutationBurst = 2
	})
	initTreasury(t, ts)

	// Initialize consumed one token; the second mutation drains the burst.
	rec := ts.post(t, "/api/v1/admin/apy", apyRequest{Admin: testAdmin, APYBPS: 600})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	rec = ts.post(t, "/api/v1/admin/apy", apyRequest{Admin: testAdmin, APYBPS: 700})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Reads are not limited.
	rec = ts.get(t, "/api/v1/pool")
	require.Equal(t, http.StatusOK, rec.Code)
	pool := decodeBody[poolView](t, rec)
	require.Equal(t, uint64(600), pool.CurrentAPYBPS)
}

func TestServer_InvalidJSONBody(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/initialize", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.httpSrv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody[errorBody](t, rec).Error, "invalid request body")
}

func TestServer_SuspendExpired(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	initTreasury(t, ts)
	stakeBacker(t, ts, 100*lamportsPerSOL)

	hash := testHash(0xB7)
	rec := ts.post(t, "/api/v1/deployments", createDeploymentRequest{
		Admin:                  testAdmin,
		Developer:              testDeveloper,
		ProgramHash:            hash,
		ServiceFeeLamports:     lamportsPerSOL,
		MonthlyFeeLamports:     lamportsPerSOL,
		InitialMonths:          1,
		DeploymentCostLamports: lamportsPerSOL,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	// Not expired yet: the batch commits but suspends nothing.
	rec = ts.post(t, "/api/v1/admin/suspend-expired", suspendRequest{
		Admin:         testAdmin,
		ProgramHashes: []treasury.ProgramHash{hash, testHash(0xEE)},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	commit := decodeBody[commitResponse](t, rec)
	require.Len(t, commit.Events, 1)
	require.Equal(t, treasury.EventProgramsSuspended, commit.Events[0].Type)

	rec = ts.get(t, fmt.Sprintf("/api/v1/deployments/%s", hash.String()))
	view := decodeBody[deploymentView](t, rec)
	require.Equal(t, treasury.StatusPendingDeployment, view.Status)
}
