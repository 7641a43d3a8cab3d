// Package pipeline is the single entry point for mutations. It resolves the
// actor, authorizes the operation, and wraps the mutation, its events and any
// derived aggregates in one transaction. No partial write survives a failure,
// and no mutation commits without at least one event.
package pipeline

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	authdomain "github.com/shohq/ontology/internal/auth/domain"
	"github.com/shohq/ontology/internal/clock"
	eventdomain "github.com/shohq/ontology/internal/event/domain"
	"github.com/shohq/ontology/internal/guard"
	"github.com/shohq/ontology/internal/observability/metrics"
	"github.com/shohq/ontology/pkg/apperrors"
	"github.com/shohq/ontology/pkg/log/ctxlogger"
	"github.com/shohq/ontology/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OperationSpec describes one mutation to the pipeline. Feature packages
// implement it; the pipeline owns ordering, authorization and atomicity.
type OperationSpec interface {
	// Name identifies the operation in logs and metrics, e.g. "thing.create".
	Name() string
	// GroupID resolves the tenant the operation targets. Operations on
	// existing records load them here to find the owning group.
	GroupID(ctx context.Context) (snowflake.ID, error)
	// Object and Action name the permission the guard checks.
	Object() string
	Action() string
	// Hierarchical operations may target descendant groups of the actor's.
	Hierarchical() bool

	// Validate runs before the transaction opens. Checks that need row locks
	// (quota, uniqueness) belong in Mutate instead.
	Validate(ctx context.Context) error
	// Mutate performs the state change on tx and returns the drafts of the
	// events describing it. Returning zero drafts fails the execution.
	Mutate(ctx context.Context, tx *gorm.DB) (any, []eventdomain.Draft, error)
	// Aggregates recomputes any derived state inside the same transaction.
	Aggregates(ctx context.Context, tx *gorm.DB, result any) error
}

type Pipeline interface {
	Execute(ctx context.Context, actorToken string, spec OperationSpec) (any, error)
}

type pipeline struct {
	db       *gorm.DB
	resolver authdomain.Resolver
	guard    guard.Guard
	events   eventdomain.Service
	clk      clock.Clock
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func New(db *gorm.DB, resolver authdomain.Resolver, gd guard.Guard, events eventdomain.Service, clk clock.Clock, m *metrics.Metrics, log *zap.Logger) Pipeline {
	return &pipeline{
		db:       db,
		resolver: resolver,
		guard:    gd,
		events:   events,
		clk:      clk,
		metrics:  m,
		log:      log.Named("pipeline"),
	}
}

func (p *pipeline) Execute(ctx context.Context, actorToken string, spec OperationSpec) (any, error) {
	start := p.clk.Now()
	execID := ulid.Make().String()
	ctx = ctxlogger.ContextWithExecutionID(ctx, execID)
	logger := ctxlogger.WithContext(ctx, p.log).With(zap.String("operation", spec.Name()))

	result, err := p.execute(ctx, actorToken, spec, logger)
	elapsed := p.clk.Now().Sub(start)
	p.metrics.RecordPipelineExecution(ctx, spec.Name(), outcome(err), elapsed)
	if err != nil {
		if errors.Is(err, apperrors.ErrAuthorization) {
			p.metrics.RecordAuthorizationDenial(ctx, spec.Object(), spec.Action())
		}
		if errors.Is(err, apperrors.ErrQuotaExceeded) {
			p.metrics.RecordQuotaRejection(ctx, spec.Object())
		}
		logger.Info("execution failed",
			zap.String("outcome", outcome(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
	logger.Info("execution committed", zap.Duration("elapsed", elapsed))
	return result, nil
}

func (p *pipeline) execute(ctx context.Context, actorToken string, spec OperationSpec, logger *zap.Logger) (any, error) {
	actor, err := p.resolver.Resolve(ctx, actorToken)
	if err != nil {
		return nil, err
	}
	ctx = tenantctx.WithActor(ctx, actor)

	groupID, err := spec.GroupID(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.guard.Authorize(ctx, actor, groupID, spec.Object(), spec.Action(), spec.Hierarchical()); err != nil {
		return nil, err
	}

	if err := spec.Validate(ctx); err != nil {
		return nil, err
	}

	var result any
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, drafts, err := spec.Mutate(ctx, tx)
		if err != nil {
			return err
		}
		if len(drafts) == 0 {
			// A mutation that cannot describe itself must not commit.
			return apperrors.Infrastructure(errors.New("operation produced no events"))
		}

		events := p.events.WithTx(tx)
		for _, draft := range drafts {
			if _, err := events.Append(ctx, eventdomain.AppendRequest{
				Type:     draft.Type,
				ActorID:  actor.PersonID,
				TargetID: draft.TargetID,
				GroupID:  groupID,
				Metadata: draft.Metadata,
			}); err != nil {
				return err
			}
		}
		p.metrics.RecordEventsAppended(ctx, spec.Name(), len(drafts))

		if err := spec.Aggregates(ctx, tx, res); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrAuthentication):
		return "unauthenticated"
	case errors.Is(err, apperrors.ErrAuthorization):
		return "denied"
	case errors.Is(err, apperrors.ErrValidation):
		return "invalid"
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
