package qualifying

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/internal/ledger"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
)

const consumerName = "qualifying-events"

type commissionLedger interface {
	CreateCommission(ctx context.Context, input ledger.CreateCommissionInput) (*models.Commission, error)
	OpenRecruitmentWindow(ctx context.Context, cfg settings.Ledger, input ledger.OpenRecruitmentInput) (*models.RecruitmentWindow, error)
}

type affiliateLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
}

type settingsSource interface {
	Current(ctx context.Context) (settings.Ledger, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type ConsumerParams struct {
	Ledger       commissionLedger
	Affiliates   affiliateLookup
	Settings     settingsSource
	Idempotency  idempotencyChecker
	Subscription receiver
	Logger       *logger.Logger
}

// Consumer turns qualifying events from other services into commissions and
// recruitment windows. Redis dedupes redeliveries; the ledger's source-id
// idempotency catches whatever slips past it.
type Consumer struct {
	ledger       commissionLedger
	affiliates   affiliateLookup
	settings     settingsSource
	idempotency  idempotencyChecker
	subscription receiver
	logg         *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Affiliates == nil {
		return nil, fmt.Errorf("affiliate repository required")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("settings provider required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		ledger:       params.Ledger,
		affiliates:   params.Affiliates,
		settings:     params.Settings,
		idempotency:  params.Idempotency,
		subscription: params.Subscription,
		logg:         params.Logger,
	}, nil
}

// Run receives until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("qualifying subscription not configured")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.Handle(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Handle processes one delivery and reports whether it should be acked.
// Malformed or rejected events are acked so they do not loop; the subscription's
// dead-letter policy only sees transient failures.
func (c *Consumer) Handle(ctx context.Context, messageID string, attributes map[string]string, data []byte) bool {
	eventType := EventType(attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	var envelope struct {
		EventID string `json:"eventId"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode qualifying event", err)
		return true
	}
	eventID := strings.TrimSpace(envelope.EventID)
	if eventID == "" {
		eventID = messageID
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID)

	switch eventType {
	case EventCallCompleted, EventRecruitRegistered, EventRecruitThresholdReached:
	default:
		c.logg.Debug(logCtx, "event not handled by qualifying consumer")
		return true
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return true
	}

	if err := c.dispatch(logCtx, eventType, data); err != nil {
		if permanent(err) {
			c.logg.Warn(c.logg.WithField(logCtx, "reason", err.Error()), "qualifying event rejected")
			return true
		}
		c.logg.Error(logCtx, "qualifying event failed", err)
		if delErr := c.idempotency.Delete(ctx, consumerName, eventID); delErr != nil {
			c.logg.Error(logCtx, "failed to clear idempotency mark", delErr)
		}
		return false
	}
	return true
}

func (c *Consumer) dispatch(ctx context.Context, eventType EventType, data []byte) error {
	cfg, err := c.settings.Current(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger settings")
	}
	switch eventType {
	case EventCallCompleted:
		var event CallCompleted
		if err := decode(data, &event); err != nil {
			return err
		}
		return c.handleCallCompleted(ctx, cfg, event)
	case EventRecruitRegistered:
		var event RecruitRegistered
		if err := decode(data, &event); err != nil {
			return err
		}
		return c.handleRecruitRegistered(ctx, cfg, event)
	default:
		var event RecruitThresholdReached
		if err := decode(data, &event); err != nil {
			return err
		}
		return c.handleThresholdReached(ctx, cfg, event)
	}
}

// handleCallCompleted credits the client's referrer and the provider's
// recruiter. The awards are independent: both are attempted and their errors
// combined. Both use the call id as source, so a redelivery after a partial
// failure only books the missing one.
func (c *Consumer) handleCallCompleted(ctx context.Context, cfg settings.Ledger, event CallCompleted) error {
	if err := event.validate(); err != nil {
		return err
	}
	metadata := map[string]any{
		"callId":         event.CallID,
		"clientId":       event.ClientID.String(),
		"providerId":     event.ProviderID.String(),
		"capturedAmount": event.CapturedAmount,
		"currency":       strings.ToUpper(event.Currency),
	}
	var errs error
	if event.ReferrerAffiliateID != nil {
		errs = multierr.Append(errs, c.award(ctx, cfg, ledger.CreateCommissionInput{
			AffiliateID: *event.ReferrerAffiliateID,
			Type:        enums.CommissionClientReferral,
			SourceID:    event.CallID,
			Description: "Client referral call " + event.CallID,
			Metadata:    metadata,
		}))
	}
	if event.ProviderRecruiterID != nil {
		providerID := event.ProviderID
		errs = multierr.Append(errs, c.award(ctx, cfg, ledger.CreateCommissionInput{
			AffiliateID: *event.ProviderRecruiterID,
			Type:        enums.CommissionProviderRecruitment,
			SourceID:    event.CallID,
			Description: "Recruited provider call " + event.CallID,
			RecruitID:   &providerID,
			Metadata:    metadata,
		}))
	}
	return errs
}

func (c *Consumer) handleRecruitRegistered(ctx context.Context, cfg settings.Ledger, event RecruitRegistered) error {
	if err := event.validate(); err != nil {
		return err
	}
	window, err := c.ledger.OpenRecruitmentWindow(ctx, cfg, ledger.OpenRecruitmentInput{
		RecruiterID: event.RecruiterID,
		RecruitID:   event.RecruitID,
		Kind:        event.RecruitKind,
	})
	if err != nil {
		return err
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"recruiter_id": event.RecruiterID.String(),
		"recruit_id":   event.RecruitID.String(),
		"window_end":   window.CommissionWindowEnd,
	}), "recruitment window opened")
	return nil
}

func (c *Consumer) handleThresholdReached(ctx context.Context, cfg settings.Ledger, event RecruitThresholdReached) error {
	if err := event.validate(); err != nil {
		return err
	}
	recruitID := event.RecruitID
	return c.award(ctx, cfg, ledger.CreateCommissionInput{
		AffiliateID: event.RecruiterID,
		Type:        enums.CommissionRecruitment,
		SourceID:    event.RecruitID.String(),
		Description: "Recruit reached activity threshold",
		RecruitID:   &recruitID,
		Metadata:    map[string]any{"recruitId": event.RecruitID.String()},
	})
}

// award resolves the configured amount for the affiliate's program and hands
// the commission to the ledger.
func (c *Consumer) award(ctx context.Context, cfg settings.Ledger, input ledger.CreateCommissionInput) error {
	affiliate, err := c.affiliates.FindByID(ctx, input.AffiliateID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
	}
	amount, ok := cfg.AmountFor(affiliate.ProgramType, input.Type)
	if !ok || amount <= 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "no amount configured for %s/%s", affiliate.ProgramType, input.Type)
	}
	input.Amount = amount

	commission, err := c.ledger.CreateCommission(ctx, input)
	if err != nil {
		return err
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"affiliate_id":    input.AffiliateID.String(),
		"commission_type": input.Type,
		"source_id":       input.SourceID,
	})
	if commission == nil {
		c.logg.Info(logCtx, "commission already recorded for source")
		return nil
	}
	c.logg.Info(c.logg.WithField(logCtx, "commission_id", commission.ID.String()), "commission awarded")
	return nil
}

func decode(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event payload")
	}
	return nil
}

// permanent reports whether redelivering the event could ever succeed. A
// combined error is permanent only when every part of it is.
func permanent(err error) bool {
	for _, e := range multierr.Errors(err) {
		switch pkgerrors.CodeOf(e) {
		case pkgerrors.CodeValidation, pkgerrors.CodeForbidden, pkgerrors.CodeNotFound,
			pkgerrors.CodeStateConflict, pkgerrors.CodeConflict:
		default:
			return false
		}
	}
	return true
}
