package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/affiliate-ledger/internal/affiliates"
	"github.com/angelmondragon/affiliate-ledger/internal/repo"
	"github.com/angelmondragon/affiliate-ledger/internal/settings"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/affiliate-ledger/pkg/errors"
)

// RecruitmentRepository stores the window in which a recruiter earns from a recruit.
type RecruitmentRepository interface {
	WithTx(tx *gorm.DB) RecruitmentRepository
	Open(ctx context.Context, window *models.RecruitmentWindow) (bool, error)
	Find(ctx context.Context, recruiterID, recruitID uuid.UUID) (*models.RecruitmentWindow, error)
	FindForUpdate(ctx context.Context, recruiterID, recruitID uuid.UUID) (*models.RecruitmentWindow, error)
	MarkPaid(ctx context.Context, windowID, commissionID uuid.UUID) (bool, error)
	ReleasePaid(ctx context.Context, commissionID uuid.UUID) (bool, error)
}

type recruitmentRepository struct {
	repo.Base
}

func NewRecruitmentRepository(db *gorm.DB) RecruitmentRepository {
	return &recruitmentRepository{Base: repo.NewBase(db)}
}

func (r *recruitmentRepository) WithTx(tx *gorm.DB) RecruitmentRepository {
	return &recruitmentRepository{Base: r.Bind(tx)}
}

// Open inserts the window unless the pair already has one. It reports whether
// a row was written.
func (r *recruitmentRepository) Open(ctx context.Context, window *models.RecruitmentWindow) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recruiter_id"}, {Name: "recruit_id"}},
			DoNothing: true,
		}).
		Create(window)
	return res.RowsAffected == 1, res.Error
}

func (r *recruitmentRepository) Find(ctx context.Context, recruiterID, recruitID uuid.UUID) (*models.RecruitmentWindow, error) {
	return r.find(r.DB(ctx), recruiterID, recruitID)
}

func (r *recruitmentRepository) FindForUpdate(ctx context.Context, recruiterID, recruitID uuid.UUID) (*models.RecruitmentWindow, error) {
	return r.find(repo.ForUpdate(r.DB(ctx)), recruiterID, recruitID)
}

func (r *recruitmentRepository) find(query *gorm.DB, recruiterID, recruitID uuid.UUID) (*models.RecruitmentWindow, error) {
	var window models.RecruitmentWindow
	err := query.Where("recruiter_id = ? AND recruit_id = ?", recruiterID, recruitID).Take(&window).Error
	if err != nil {
		return nil, err
	}
	return &window, nil
}

// MarkPaid consumes the window for commissionID. It reports false when the
// window was already consumed.
func (r *recruitmentRepository) MarkPaid(ctx context.Context, windowID, commissionID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.RecruitmentWindow{}).
		Where("id = ? AND commission_paid = ?", windowID, false).
		Updates(map[string]any{"commission_paid": true, "paid_commission_id": commissionID})
	return res.RowsAffected == 1, res.Error
}

// ReleasePaid frees the window consumed by commissionID so the recruit can earn
// again while the window is open.
func (r *recruitmentRepository) ReleasePaid(ctx context.Context, commissionID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.RecruitmentWindow{}).
		Where("paid_commission_id = ? AND commission_paid = ?", commissionID, true).
		Updates(map[string]any{"commission_paid": false, "paid_commission_id": nil})
	return res.RowsAffected == 1, res.Error
}

// OpenRecruitmentInput records a new recruit for a recruiter.
type OpenRecruitmentInput struct {
	RecruiterID uuid.UUID
	RecruitID   uuid.UUID
	Kind        enums.RecruitKind
	// RegisteredAt anchors the window; zero means now.
	RegisteredAt time.Time
}

// OpenRecruitmentWindow starts the commission window for a recruit. Opening the
// same pair twice returns the existing window unchanged.
func (s *Service) OpenRecruitmentWindow(ctx context.Context, cfg settings.Ledger, input OpenRecruitmentInput) (*models.RecruitmentWindow, error) {
	if input.RecruiterID == uuid.Nil || input.RecruitID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recruiter and recruit ids are required")
	}
	if input.RecruiterID == input.RecruitID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "an affiliate cannot recruit themselves")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid recruit kind %q", input.Kind)
	}

	now := s.clock()
	anchor := input.RegisteredAt.UTC()
	if anchor.IsZero() {
		anchor = now
	}

	var window *models.RecruitmentWindow
	err := s.db.WithRetryableTx(ctx, func(tx *gorm.DB) error {
		if _, err := affiliates.RequireActive(ctx, s.affiliates.WithTx(tx), input.RecruiterID); err != nil {
			return err
		}
		recruitment := s.recruitment.WithTx(tx)
		candidate := &models.RecruitmentWindow{
			ID:                  uuid.New(),
			RecruiterID:         input.RecruiterID,
			RecruitID:           input.RecruitID,
			RecruitKind:         input.Kind,
			CommissionWindowEnd: cfg.RecruitmentWindowEnd(anchor),
			CreatedAt:           now,
		}
		created, err := recruitment.Open(ctx, candidate)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open recruitment window")
		}
		if created {
			window = candidate
			return nil
		}
		existing, err := recruitment.Find(ctx, input.RecruiterID, input.RecruitID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recruitment window")
		}
		window = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"recruiter_id": input.RecruiterID.String(),
		"recruit_id":   input.RecruitID.String(),
		"window_end":   window.CommissionWindowEnd,
	}), "recruitment window recorded")
	return window, nil
}

// lockWindow re-reads the recruitment window under a row lock and checks it can
// still earn commissionType at now.
func lockWindow(ctx context.Context, recruitment RecruitmentRepository, recruiterID, recruitID uuid.UUID, commissionType enums.CommissionType, now time.Time) (*models.RecruitmentWindow, error) {
	window, err := recruitment.FindForUpdate(ctx, recruiterID, recruitID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no recruitment window for this recruit")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recruitment window")
	}
	if window.RecruitKind.CommissionType() != commissionType {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s recruit cannot earn %s", window.RecruitKind, commissionType)
	}
	if !window.OpenAt(now) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "recruitment window has expired").
			WithDetails(map[string]any{"window_end": window.CommissionWindowEnd})
	}
	if commissionType == enums.CommissionRecruitment && window.CommissionPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "recruitment commission already paid for this recruit")
	}
	return window, nil
}
