// Package sol holds the on-chain glue for the treasury: program-derived
// addresses for the pool accounts and a balance reader over Solana JSON-RPC.
package sol

import (
	"github.com/gagliardetto/solana-go"
)

// PDA seeds. These must match the on-chain program byte for byte or every
// derived address is wrong.
var (
	seedTreasuryPool  = []byte("treasury_pool")
	seedRewardPool    = []byte("reward_pool")
	seedPlatformPool  = []byte("platform_pool")
	seedBackerDeposit = []byte("lender_stake")
	seedDeployRequest = []byte("deploy_request")
	seedUserStats     = []byte("user_stats")
)

func DeriveTreasuryPoolPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedTreasuryPool}, programID)
}

func DeriveRewardPoolPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedRewardPool}, programID)
}

func DerivePlatformPoolPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedPlatformPool}, programID)
}

func DeriveBackerDepositPDA(programID, backer solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedBackerDeposit, backer.Bytes()}, programID)
}

func DeriveDeployRequestPDA(programID solana.PublicKey, programHash [32]byte) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedDeployRequest, programHash[:]}, programID)
}

func DeriveUserStatsPDA(programID, developer solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seedUserStats, developer.Bytes()}, programID)
}

// VaultSet is the three program-owned vault addresses the ledger tracks:
// principal in the treasury vault, fee revenue in the reward vault, platform
// revenue in the platform vault.
type VaultSet struct {
	Treasury solana.PublicKey
	Reward   solana.PublicKey
	Platform solana.PublicKey
}

// DeriveVaults resolves the vault set for a program.
func DeriveVaults(programID solana.PublicKey) (VaultSet, error) {
	treasury, _, err := DeriveTreasuryPoolPDA(programID)
	if err != nil {
		return VaultSet{}, err
	}
	reward, _, err := DeriveRewardPoolPDA(programID)
	if err != nil {
		return VaultSet{}, err
	}
	platform, _, err := DerivePlatformPoolPDA(programID)
	if err != nil {
		return VaultSet{}, err
	}
	return VaultSet{Treasury: treasury, Reward: reward, Platform: platform}, nil
}
