// Package notify posts operational alerts to Slack: failed deployments,
// break-glass reward withdrawals, and vault drift found by the reconciler.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/slack-go/slack"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/metrics"
	"github.com/SaitamaCoderVN/d2d-treasury/utils/pkg/retry"
)

// Notifier posts alerts. Implementations must be safe for concurrent use;
// callers treat failures as log-and-continue, never as instruction failures.
type Notifier interface {
	DeploymentFailed(ctx context.Context, programHash string, developer string, reason string, refund uint64) error
	BreakGlassWithdraw(ctx context.Context, amount uint64, reason string, destination string) error
	VaultDrift(ctx context.Context, vault string, onChain, tracked uint64) error
}

// Slack is a Notifier over the Slack Web API. Posts are retried with
// backoff.
type Slack struct {
	api     *slack.Client
	channel string
	log     *slog.Logger
}

// NewSlack builds a Slack notifier posting to the given channel.
func NewSlack(token, channel string, log *slog.Logger) *Slack {
	return &Slack{
		api:     slack.New(token),
		channel: channel,
		log:     log,
	}
}

func (s *Slack) DeploymentFailed(ctx context.Context, programHash string, developer string, reason string, refund uint64) error {
	text := fmt.Sprintf(":x: Deployment failed for program `%s`\n> developer: `%s`\n> reason: %s\n> refunded: %s SOL",
		programHash, developer, reason, solString(refund))
	return s.post(ctx, "deployment_failed", text)
}

func (s *Slack) BreakGlassWithdraw(ctx context.Context, amount uint64, reason string, destination string) error {
	text := fmt.Sprintf(":rotating_light: Break-glass reward pool withdrawal of %s SOL\n> destination: `%s`\n> reason: %s\n> backer claims are now at risk until the pool is topped up",
		solString(amount), destination, reason)
	return s.post(ctx, "break_glass_withdraw", text)
}

func (s *Slack) VaultDrift(ctx context.Context, vault string, onChain, tracked uint64) error {
	text := fmt.Sprintf(":warning: Vault drift detected on `%s`\n> on-chain: %s SOL\n> tracked: %s SOL",
		vault, solString(onChain), solString(tracked))
	return s.post(ctx, "vault_drift", text)
}

func (s *Slack) post(ctx context.Context, kind, text string) error {
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		_, _, err := s.api.PostMessageContext(ctx, s.channel,
			slack.MsgOptionText(text, false),
			slack.MsgOptionDisableLinkUnfurl(),
		)
		return err
	})
	metrics.RecordNotification(kind, err)
	if err != nil {
		s.log.Warn("notify: failed to post to slack", "kind", kind, "error", err)
		return fmt.Errorf("failed to post %s notification: %w", kind, err)
	}
	s.log.Debug("notify: posted to slack", "kind", kind, "channel", s.channel)
	return nil
}

// Noop is the Notifier used when no Slack token is configured.
type Noop struct{}

func (Noop) DeploymentFailed(context.Context, string, string, string, uint64) error {
	return nil
}

func (Noop) BreakGlassWithdraw(context.Context, uint64, string, string) error {
	return nil
}

func (Noop) VaultDrift(context.Context, string, uint64, uint64) error {
	return nil
}

// solString renders lamports as a SOL amount for humans.
func solString(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9).String()
}
