package treasury

import (
	"sort"

	"github.com/gagliardetto/solana-go"
)

// State is the complete in-memory ledger: the pool plus every deposit,
// deploy request, and developer stats record. Operations never mutate a
// State directly; they return a Mutation holding replacement records, and
// the caller applies it only after the mutation has been durably committed.
type State struct {
	Pool     *Pool
	Deposits map[solana.PublicKey]*Deposit
	Requests map[ProgramHash]*DeployRequest
	Stats    map[solana.PublicKey]*DeveloperStats
}

func NewState() *State {
	return &State{
		Deposits: make(map[solana.PublicKey]*Deposit),
		Requests: make(map[ProgramHash]*DeployRequest),
		Stats:    make(map[solana.PublicKey]*DeveloperStats),
	}
}

// Mutation is the atomic result of one operation: replacement records for
// everything the operation touched, plus the events it emitted. Records not
// listed are untouched. Apply installs the mutation into a State; the store
// persists the same records and events in a single transaction.
type Mutation struct {
	Pool     *Pool
	Deposits []*Deposit
	Requests []*DeployRequest
	Stats    []*DeveloperStats
	Events   []Event
}

// Apply installs the mutation's replacement records. Call only after the
// mutation has been committed to durable storage.
func (s *State) Apply(m *Mutation) {
	if m.Pool != nil {
		s.Pool = m.Pool
	}
	for _, d := range m.Deposits {
		s.Deposits[d.Backer] = d
	}
	for _, r := range m.Requests {
		s.Requests[r.ProgramHash] = r
	}
	for _, st := range m.Stats {
		s.Stats[st.Developer] = st
	}
}

// guard runs the checks shared by every post-init operation.
func (s *State) guard(signer solana.PublicKey, adminOnly bool) error {
	if s.Pool == nil {
		return ErrNotInitialized
	}
	if s.Pool.EmergencyPause {
		return ErrEmergencyPauseActive
	}
	if adminOnly && signer != s.Pool.Admin {
		return ErrUnauthorized
	}
	return nil
}

// adminGuard is guard without the pause check. Only the pause toggle itself
// uses it; everything else is blocked while paused.
func (s *State) adminGuard(signer solana.PublicKey) error {
	if s.Pool == nil {
		return ErrNotInitialized
	}
	if signer != s.Pool.Admin {
		return ErrUnauthorized
	}
	return nil
}

// depositOf returns the live record, active or not: a fully unstaked backer
// can still hold pending rewards.
func (s *State) depositOf(backer solana.PublicKey) (*Deposit, error) {
	d, ok := s.Deposits[backer]
	if !ok {
		return nil, ErrDepositNotFound
	}
	return d, nil
}

func (s *State) requestOf(hash ProgramHash) (*DeployRequest, error) {
	r, ok := s.Requests[hash]
	if !ok {
		return nil, ErrDeployRequestNotFound
	}
	return r, nil
}

// DepositOf returns a copy of the backer's deposit record, active or not.
func (s *State) DepositOf(backer solana.PublicKey) (*Deposit, bool) {
	d, ok := s.Deposits[backer]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// RequestOf returns a copy of the deploy request for the given hash.
func (s *State) RequestOf(hash ProgramHash) (*DeployRequest, bool) {
	r, ok := s.Requests[hash]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// StatsOf returns a copy of the developer's deploy stats.
func (s *State) StatsOf(dev solana.PublicKey) (*DeveloperStats, bool) {
	st, ok := s.Stats[dev]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// ClaimableOf reports the rewards the backer could claim right now.
// Inactive deposits count: unstaking does not forfeit the pending bucket.
func (s *State) ClaimableOf(backer solana.PublicKey) (uint64, error) {
	if s.Pool == nil {
		return 0, ErrNotInitialized
	}
	d, ok := s.Deposits[backer]
	if !ok {
		return 0, ErrDepositNotFound
	}
	return d.Claimable(s.Pool.RewardPerShare)
}

// TotalClaimable sums unclaimed entitlement across every deposit record.
func (s *State) TotalClaimable() (uint64, error) {
	if s.Pool == nil {
		return 0, ErrNotInitialized
	}
	var total uint64
	for _, d := range s.Deposits {
		c, err := d.Claimable(s.Pool.RewardPerShare)
		if err != nil {
			return 0, err
		}
		total, err = addU64(total, c)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// PendingDeployCredits sums the reward credits of deploy requests that were
// credited to the reward pool at creation but whose reward-per-share
// distribution has not happened yet. These lamports sit in the reward pool
// but are still refundable on failure or cancellation.
func (s *State) PendingDeployCredits() (uint64, error) {
	var total uint64
	for _, r := range s.Requests {
		switch r.Status {
		case StatusPendingDeployment:
		default:
			continue
		}
		credit, err := r.rewardCredit()
		if err != nil {
			return 0, err
		}
		total, err = addU64(total, credit)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// WithdrawableRewardExcess reports how much of the reward pool the admin can
// take without touching backer claims or refundable deploy credits.
func (s *State) WithdrawableRewardExcess() (uint64, error) {
	if s.Pool == nil {
		return 0, ErrNotInitialized
	}
	claimable, err := s.TotalClaimable()
	if err != nil {
		return 0, err
	}
	credits, err := s.PendingDeployCredits()
	if err != nil {
		return 0, err
	}
	reserved, err := addU64(claimable, credits)
	if err != nil {
		return 0, err
	}
	if reserved >= s.Pool.RewardPoolBalance {
		return 0, nil
	}
	return s.Pool.RewardPoolBalance - reserved, nil
}

// RequestsWithStatus returns copies of every deploy request in the given
// status, ordered by program hash for deterministic iteration.
func (s *State) RequestsWithStatus(status DeployStatus) []*DeployRequest {
	var out []*DeployRequest
	for _, r := range s.Requests {
		if r.Status == status {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProgramHash.String() < out[j].ProgramHash.String()
	})
	return out
}

// ActiveDeposits returns copies of every active deposit, ordered by backer.
func (s *State) ActiveDeposits() []*Deposit {
	var out []*Deposit
	for _, d := range s.Deposits {
		if d.IsActive {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Backer.String() < out[j].Backer.String()
	})
	return out
}
