package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"postmint/core/pricing"
	"postmint/core/types"
	"postmint/native/proof"
	"postmint/observability"
)

// Minter issues the outbound token mint call against the external registry.
type Minter interface {
	NFTMint(ctx context.Context, tokenID, receiver string, metadata types.TokenMetadata) (*types.TokenDescriptor, error)
}

type escrowEngine interface {
	BeginFulfillment(contentID string, metrics pricing.EngagementMetrics) (*big.Int, error)
	FinalizeMint(contentID string, requiredCost *big.Int, author, recipient, tokenID string) (*big.Int, error)
}

// Orchestrator sequences the asynchronous hops of a mint run:
// verify -> funding precheck -> mint -> confirm. Each hop is a separate
// atomic operation; a failed hop fails the whole run and the orchestrator
// performs no automatic retries. Escrow state only advances to fulfilled in
// the confirm hop, so a failure after verification leaves funds recoverable
// through cancellation or expiry reclaim.
type Orchestrator struct {
	verifier proof.Verifier
	escrow   escrowEngine
	minter   Minter
	logger   *slog.Logger
	metrics  *observability.PipelineMetrics
}

// Option customises the orchestrator instance.
type Option func(*Orchestrator)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// NewOrchestrator wires the verification gateway, escrow engine and minter.
func NewOrchestrator(verifier proof.Verifier, escrow escrowEngine, minter Minter, opts ...Option) *Orchestrator {
	orch := &Orchestrator{
		verifier: verifier,
		escrow:   escrow,
		minter:   minter,
		logger:   slog.Default(),
		metrics:  observability.Pipeline(),
	}
	for _, opt := range opts {
		opt(orch)
	}
	return orch
}

// Run drives a full mint run for the supplied artifact and returns the
// created token descriptor on success.
func (o *Orchestrator) Run(ctx context.Context, contentID, caller string, artifact proof.Artifact) (*types.TokenDescriptor, error) {
	if o == nil || o.verifier == nil || o.escrow == nil || o.minter == nil {
		return nil, fmt.Errorf("pipeline: orchestrator not configured")
	}
	cont := Continuation{
		RunID:     uuid.NewString(),
		ContentID: strings.TrimSpace(contentID),
		Caller:    strings.TrimSpace(caller),
	}
	cont, err := o.verifyHop(ctx, cont, artifact)
	if err != nil {
		o.finish(cont, "verify", err)
		return nil, err
	}
	cont, err = o.precheckHop(cont)
	if err != nil {
		o.finish(cont, "precheck", err)
		return nil, err
	}
	descriptor, err := o.mintHop(ctx, cont)
	if err != nil {
		o.finish(cont, "mint", err)
		return nil, err
	}
	if err := o.confirmHop(cont, descriptor); err != nil {
		o.finish(cont, "confirm", err)
		return nil, err
	}
	o.finish(cont, "", nil)
	return descriptor, nil
}

// verifyHop validates the proof artifact and threads the verified metadata
// and identities into the continuation.
func (o *Orchestrator) verifyHop(ctx context.Context, cont Continuation, artifact proof.Artifact) (Continuation, error) {
	defer o.observe("verify", time.Now())
	verified, err := o.verifier.Verify(ctx, cont.ContentID, cont.Caller, artifact)
	if err != nil {
		return cont, err
	}
	cont.Metadata = verified.Metadata
	cont.Recipient = verified.Recipient
	cont.Author = verified.Author
	cont.TokenID = cont.ContentID
	return cont, nil
}

// precheckHop recomputes the required cost from the verified metrics and
// confirms the escrow covers it. The escrow status is not advanced here.
func (o *Orchestrator) precheckHop(cont Continuation) (Continuation, error) {
	defer o.observe("precheck", time.Now())
	metrics, err := pricing.MetricsFromExtra(cont.Metadata.Extra)
	if err != nil {
		return cont, err
	}
	required, err := o.escrow.BeginFulfillment(cont.ContentID, metrics)
	if err != nil {
		return cont, err
	}
	cont.RequiredCost = required
	return cont, nil
}

// mintHop issues the outbound mint call. A failure here is not fatal to user
// funds: the escrow remains in its created state.
func (o *Orchestrator) mintHop(ctx context.Context, cont Continuation) (*types.TokenDescriptor, error) {
	defer o.observe("mint", time.Now())
	descriptor, err := o.minter.NFTMint(ctx, cont.TokenID, cont.Recipient, cont.Metadata)
	if err != nil {
		return nil, fmt.Errorf("pipeline: mint call failed: %w", err)
	}
	if descriptor == nil {
		return nil, fmt.Errorf("pipeline: mint call returned no token descriptor")
	}
	return descriptor, nil
}

// confirmHop settles the escrow once the mint call has succeeded and logs
// the created token descriptor.
func (o *Orchestrator) confirmHop(cont Continuation, descriptor *types.TokenDescriptor) error {
	defer o.observe("confirm", time.Now())
	credit, err := o.escrow.FinalizeMint(cont.ContentID, cont.RequiredCost, cont.Author, cont.Recipient, descriptor.TokenID)
	if err != nil {
		return fmt.Errorf("pipeline: finalize after mint failed: %w", err)
	}
	o.logger.Info("mint confirmed",
		"runId", cont.RunID,
		"contentId", cont.ContentID,
		"tokenId", descriptor.TokenID,
		"owner", descriptor.OwnerID,
		"authorCredit", credit.String(),
	)
	return nil
}

func (o *Orchestrator) observe(hop string, start time.Time) {
	if o.metrics != nil {
		o.metrics.ObserveHop(hop, time.Since(start))
	}
}

func (o *Orchestrator) finish(cont Continuation, failedHop string, err error) {
	if err == nil {
		if o.metrics != nil {
			o.metrics.RecordRun("success")
		}
		return
	}
	if o.metrics != nil {
		o.metrics.RecordRun(failedHop)
	}
	o.logger.Error("mint run failed",
		"runId", cont.RunID,
		"contentId", cont.ContentID,
		"hop", failedHop,
		"error", err,
	)
}
