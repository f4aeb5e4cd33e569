package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/engine"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/store"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/treasury"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("server: failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeLedgerError maps a rejected instruction onto an HTTP status.
func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	s.writeError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, treasury.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, treasury.ErrDepositNotFound),
		errors.Is(err, treasury.ErrDeployRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, treasury.ErrInvalidAmount),
		errors.Is(err, treasury.ErrInvalidAPY),
		errors.Is(err, treasury.ErrInvalidTreasuryWallet):
		return http.StatusBadRequest
	case errors.Is(err, treasury.ErrAlreadyInitialized),
		errors.Is(err, treasury.ErrNotInitialized),
		errors.Is(err, treasury.ErrEmergencyPauseActive),
		errors.Is(err, treasury.ErrInvalidStatus),
		errors.Is(err, treasury.ErrInsufficientDeposit),
		errors.Is(err, treasury.ErrInsufficientLiquidBalance),
		errors.Is(err, treasury.ErrInsufficientRewardPoolBalance),
		errors.Is(err, treasury.ErrInsufficientPlatformPool),
		errors.Is(err, treasury.ErrInsufficientTreasuryFunds),
		errors.Is(err, treasury.ErrNoRewardsToClaim):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNoBalanceReader):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst. An empty body decodes to the zero
// value so signer-only endpoints can be called without one.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func pathPubkey(r *http.Request, param string) (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(chi.URLParam(r, param))
}

func pathHash(r *http.Request) (treasury.ProgramHash, error) {
	return treasury.ProgramHashFromBase58(chi.URLParam(r, "hash"))
}

// --- Mutations ---

type initializeRequest struct {
	Admin         solana.PublicKey `json:"admin"`
	DevWallet     solana.PublicKey `json:"dev_wallet"`
	InitialAPYBPS uint64           `json:"initial_apy_bps"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.Initialize(r.Context(), req.Admin, req.DevWallet, req.InitialAPYBPS)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type stakeRequest struct {
	AmountLamports    uint64 `json:"amount_lamports"`
	LockPeriodSeconds int64  `json:"lock_period_seconds"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	backer, err := pathPubkey(r, "pubkey")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid backer pubkey: "+err.Error())
		return
	}
	var req stakeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.StakeSOL(r.Context(), backer, req.AmountLamports, req.LockPeriodSeconds)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type unstakeRequest struct {
	AmountLamports uint64 `json:"amount_lamports"`
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	backer, err := pathPubkey(r, "pubkey")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid backer pubkey: "+err.Error())
		return
	}
	var req unstakeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.UnstakeSOL(r.Context(), backer, req.AmountLamports)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	backer, err := pathPubkey(r, "pubkey")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid backer pubkey: "+err.Error())
		return
	}
	m, err := s.engine.ClaimRewards(r.Context(), backer)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type creditFeeRequest struct {
	Admin               solana.PublicKey `json:"admin"`
	FeeRewardLamports   uint64           `json:"fee_reward_lamports"`
	FeePlatformLamports uint64           `json:"fee_platform_lamports"`
}

func (s *Server) handleCreditFee(w http.ResponseWriter, r *http.Request) {
	var req creditFeeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.CreditFeeToPool(r.Context(), req.Admin, req.FeeRewardLamports, req.FeePlatformLamports)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type createDeploymentRequest struct {
	Admin                  solana.PublicKey     `json:"admin"`
	Developer              solana.PublicKey     `json:"developer"`
	ProgramHash            treasury.ProgramHash `json:"program_hash"`
	ServiceFeeLamports     uint64               `json:"service_fee_lamports"`
	MonthlyFeeLamports     uint64               `json:"monthly_fee_lamports"`
	InitialMonths          uint32               `json:"initial_months"`
	DeploymentCostLamports uint64               `json:"deployment_cost_lamports"`
}

func (s *Server) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req createDeploymentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.CreateDeployRequest(r.Context(), req.Admin, req.Developer, req.ProgramHash,
		req.ServiceFeeLamports, req.MonthlyFeeLamports, req.InitialMonths, req.DeploymentCostLamports)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type fundRequest struct {
	Admin           solana.PublicKey `json:"admin"`
	EphemeralKey    solana.PublicKey `json:"ephemeral_key"`
	CostLamports    uint64           `json:"cost_lamports"`
	UsePlatformPool bool             `json:"use_platform_pool"`
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req fundRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.FundTemporaryWallet(r.Context(), req.Admin, hash, req.EphemeralKey, req.CostLamports, req.UsePlatformPool)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type confirmSuccessRequest struct {
	Admin             solana.PublicKey `json:"admin"`
	DeployedProgramID solana.PublicKey `json:"deployed_program_id"`
	RecoveredLamports uint64           `json:"recovered_lamports"`
}

func (s *Server) handleConfirmSuccess(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req confirmSuccessRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.ConfirmDeploymentSuccess(r.Context(), req.Admin, hash, req.DeployedProgramID, req.RecoveredLamports)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type confirmFailureRequest struct {
	Admin  solana.PublicKey `json:"admin"`
	Reason string           `json:"reason"`
}

func (s *Server) handleConfirmFailure(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req confirmFailureRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.ConfirmDeploymentFailure(r.Context(), req.Admin, hash, req.Reason)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type cancelRequest struct {
	Signer solana.PublicKey `json:"signer"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.CancelDeployRequest(r.Context(), req.Signer, hash)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type closeRequest struct {
	Admin             solana.PublicKey `json:"admin"`
	RecoveredLamports uint64           `json:"recovered_lamports"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req closeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.CloseProgramAndRefund(r.Context(), req.Admin, hash, req.RecoveredLamports)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type subscriptionRequest struct {
	Developer solana.PublicKey `json:"developer"`
	Months    uint32           `json:"months"`
}

func (s *Server) handlePaySubscription(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req subscriptionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.PaySubscription(r.Context(), req.Developer, hash, req.Months)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type suspendRequest struct {
	Admin         solana.PublicKey       `json:"admin"`
	ProgramHashes []treasury.ProgramHash `json:"program_hashes"`
}

func (s *Server) handleSuspendExpired(w http.ResponseWriter, r *http.Request) {
	var req suspendRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.SuspendExpiredPrograms(r.Context(), req.Admin, req.ProgramHashes)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type pauseRequest struct {
	Admin  solana.PublicKey `json:"admin"`
	Paused bool             `json:"paused"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.EmergencyPause(r.Context(), req.Admin, req.Paused)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type apyRequest struct {
	Admin  solana.PublicKey `json:"admin"`
	APYBPS uint64           `json:"apy_bps"`
}

func (s *Server) handleUpdateAPY(w http.ResponseWriter, r *http.Request) {
	var req apyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.UpdateAPY(r.Context(), req.Admin, req.APYBPS)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type withdrawRequest struct {
	Admin          solana.PublicKey `json:"admin"`
	AmountLamports uint64           `json:"amount_lamports"`
	Reason         string           `json:"reason"`
	Destination    solana.PublicKey `json:"destination"`
}

func (s *Server) handleWithdrawPlatform(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.WithdrawPlatform(r.Context(), req.Admin, req.AmountLamports, req.Reason, req.Destination)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

func (s *Server) handleWithdrawRewards(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.WithdrawRewardPool(r.Context(), req.Admin, req.AmountLamports, req.Reason, req.Destination)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

type syncLiquidRequest struct {
	Admin solana.PublicKey `json:"admin"`
}

func (s *Server) handleSyncLiquid(w http.ResponseWriter, r *http.Request) {
	var req syncLiquidRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := s.engine.SyncLiquidBalance(r.Context(), req.Admin)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCommitResponse(m))
}

// --- Reads ---

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	pool := s.engine.Pool()
	if pool == nil {
		s.writeError(w, http.StatusNotFound, treasury.ErrNotInitialized.Error())
		return
	}
	totals, err := s.engine.Totals()
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newPoolView(pool, totals, s.cfg.Vaults, s.engine.LastSeq()))
}

func (s *Server) handleBacker(w http.ResponseWriter, r *http.Request) {
	backer, err := pathPubkey(r, "pubkey")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid backer pubkey: "+err.Error())
		return
	}
	deposit, ok := s.engine.Deposit(backer)
	if !ok {
		s.writeError(w, http.StatusNotFound, treasury.ErrDepositNotFound.Error())
		return
	}
	claimable, err := s.engine.Claimable(backer)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newBackerView(deposit, claimable))
}

func (s *Server) handleDeployment(w http.ResponseWriter, r *http.Request) {
	hash, err := pathHash(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, ok := s.engine.Request(hash)
	if !ok {
		s.writeError(w, http.StatusNotFound, treasury.ErrDeployRequestNotFound.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newDeploymentView(req))
}

type deploymentsResponse struct {
	Deployments []deploymentView `json:"deployments"`
	Count       int              `json:"count"`
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	var f engine.RequestFilter

	if v := r.URL.Query().Get("status"); v != "" {
		status := treasury.DeployStatus(v)
		if !status.Valid() {
			s.writeError(w, http.StatusBadRequest, "invalid status "+strconv.Quote(v))
			return
		}
		f.Status = status
	}
	if v := r.URL.Query().Get("developer"); v != "" {
		developer, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid developer pubkey: "+err.Error())
			return
		}
		f.Developer = developer
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		f.Offset = offset
	}

	requests := s.engine.Requests(f)
	views := make([]deploymentView, 0, len(requests))
	for _, req := range requests {
		views = append(views, newDeploymentView(req))
	}
	s.writeJSON(w, http.StatusOK, deploymentsResponse{Deployments: views, Count: len(views)})
}

func (s *Server) handleDeveloperStats(w http.ResponseWriter, r *http.Request) {
	developer, err := pathPubkey(r, "pubkey")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid developer pubkey: "+err.Error())
		return
	}
	stats, ok := s.engine.Stats(developer)
	if !ok {
		s.writeError(w, http.StatusNotFound, "developer stats not found")
		return
	}
	s.writeJSON(w, http.StatusOK, newStatsView(stats))
}

type eventsResponse struct {
	Events []store.EventRecord `json:"events"`

	// NextBefore is the cursor for the next page, zero when this page is
	// the end of the log.
	NextBefore uint64 `json:"next_before,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var q store.EventQuery

	if v := r.URL.Query().Get("type"); v != "" {
		q.Type = treasury.EventType(v)
	}
	if v := r.URL.Query().Get("before"); v != "" {
		before, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		q.Before = before
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit > 500 {
			limit = 500
		}
		q.Limit = limit
	}

	records, err := s.events.Events(r.Context(), q)
	if err != nil {
		s.log.Error("server: failed to read events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	resp := eventsResponse{Events: records}
	if len(records) > 0 {
		resp.NextBefore = records[len(records)-1].Seq
	}
	if resp.Events == nil {
		resp.Events = []store.EventRecord{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}
