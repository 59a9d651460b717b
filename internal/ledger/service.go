package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/pkg/db"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/metrics"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
)

// TxRunner runs fn in a transaction that is replayed on serialization failures.
type TxRunner interface {
	WithRetryableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

var _ TxRunner = (*db.Client)(nil)

// ServiceParams wires the ledger service dependencies.
type ServiceParams struct {
	DB          TxRunner
	Commissions Repository
	Balances    BalanceRepository
	Affiliates  affiliates.Repository
	Recruitment RecruitmentRepository
	Outbox      outbox.Emitter
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

// Service owns commission creation, the commission lifecycle and the balance
// buckets that mirror it.
type Service struct {
	db          TxRunner
	commissions Repository
	balances    BalanceRepository
	affiliates  affiliates.Repository
	recruitment RecruitmentRepository
	outbox      outbox.Emitter
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.DB == nil:
		return nil, fmt.Errorf("ledger db required")
	case p.Commissions == nil:
		return nil, fmt.Errorf("commission repository required")
	case p.Balances == nil:
		return nil, fmt.Errorf("balance repository required")
	case p.Affiliates == nil:
		return nil, fmt.Errorf("affiliate repository required")
	case p.Recruitment == nil:
		return nil, fmt.Errorf("recruitment repository required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:          p.DB,
		commissions: p.Commissions,
		balances:    p.Balances,
		affiliates:  p.Affiliates,
		recruitment: p.Recruitment,
		outbox:      p.Outbox,
		metrics:     p.Metrics,
		logg:        p.Logger,
		now:         now,
	}, nil
}

// Actor identifies who triggered an operation. The zero value means the system.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Ref converts the actor into the outbox representation.
func (a Actor) Ref() *outbox.ActorRef {
	if a.ID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{ActorID: a.ID, Role: a.Role}
}

// IDPtr returns the actor id for nullable audit columns.
func (a Actor) IDPtr() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// balanceError maps a guard rejection onto a state conflict for callers.
func balanceError(err error, message string) error {
	if errors.Is(err, ErrBalanceGuard) {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func commissionNotFound(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "commission not found").
			WithDetails(map[string]any{"commission_id": id.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission")
}

func (s *Service) commissionFields(ctx context.Context, c *models.Commission) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"commission_id": c.ID.String(),
		"affiliate_id":  c.AffiliateID.String(),
		"type":          c.Type,
		"status":        c.Status,
		"amount":        c.Amount,
	})
}
