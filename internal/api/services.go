package api

import (
	"fmt"

	"gorm.io/gorm"

	iauth "github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/internal/auth/providers"
	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/payment"
	"github.com/charlesng35/happycat/internal/queue"
	"github.com/charlesng35/happycat/internal/realtime"
	"github.com/charlesng35/happycat/internal/services"
)

// ServiceDeps carries the shared infrastructure the domain services are built from.
// Jobs, Providers, Gateway and Assessor are optional.
type ServiceDeps struct {
	DB        *gorm.DB
	Aside     *cache.Aside
	Tokens    *iauth.TokenService
	Publisher realtime.Publisher
	Jobs      queue.Enqueuer
	Providers *providers.Registry
	Gateway   *payment.Gateway
	Assessor  services.Assessor

	AuthOptions []services.AuthOption
}

// NewServices constructs every domain service in dependency order.
func NewServices(deps ServiceDeps) (Services, error) {
	var (
		out Services
		err error
	)
	db, aside := deps.DB, deps.Aside

	if out.Invitations, err = services.NewInvitationService(db, aside); err != nil {
		return Services{}, fmt.Errorf("invitation service: %w", err)
	}
	if out.Users, err = services.NewUserService(db, aside, out.Invitations, deps.Tokens); err != nil {
		return Services{}, fmt.Errorf("user service: %w", err)
	}

	authOpts := append([]services.AuthOption(nil), deps.AuthOptions...)
	if deps.Providers != nil {
		authOpts = append(authOpts, services.WithProviders(deps.Providers))
	}
	if out.Auth, err = services.NewAuthService(db, aside, deps.Tokens, out.Invitations, deps.Jobs, authOpts...); err != nil {
		return Services{}, fmt.Errorf("auth service: %w", err)
	}

	if out.Locations, err = services.NewLocationService(db, aside); err != nil {
		return Services{}, fmt.Errorf("location service: %w", err)
	}
	if out.Units, err = services.NewUnitService(db, aside); err != nil {
		return Services{}, fmt.Errorf("unit service: %w", err)
	}
	if out.Lessons, err = services.NewLessonService(db, aside); err != nil {
		return Services{}, fmt.Errorf("lesson service: %w", err)
	}
	if out.Progress, err = services.NewProgressService(db, aside); err != nil {
		return Services{}, fmt.Errorf("progress service: %w", err)
	}
	if out.Packages, err = services.NewPackageService(db, aside); err != nil {
		return Services{}, fmt.Errorf("package service: %w", err)
	}
	if out.Purchases, err = services.NewPurchaseService(db, aside); err != nil {
		return Services{}, fmt.Errorf("purchase service: %w", err)
	}
	if deps.Gateway != nil {
		if out.Payments, err = services.NewPaymentService(db, deps.Gateway, out.Purchases); err != nil {
			return Services{}, fmt.Errorf("payment service: %w", err)
		}
	}
	if out.Literatures, err = services.NewLiteratureService(db, aside); err != nil {
		return Services{}, fmt.Errorf("literature service: %w", err)
	}
	if out.Groups, err = services.NewGroupService(db, aside); err != nil {
		return Services{}, fmt.Errorf("group service: %w", err)
	}
	if out.Messages, err = services.NewGroupMessageService(db, aside, deps.Publisher); err != nil {
		return Services{}, fmt.Errorf("group message service: %w", err)
	}
	if out.Assignments, err = services.NewAssignmentService(db, aside); err != nil {
		return Services{}, fmt.Errorf("assignment service: %w", err)
	}
	if out.Submissions, err = services.NewSubmissionService(db, aside); err != nil {
		return Services{}, fmt.Errorf("submission service: %w", err)
	}
	if out.Badges, err = services.NewBadgeService(db, aside); err != nil {
		return Services{}, fmt.Errorf("badge service: %w", err)
	}
	if out.Supports, err = services.NewSupportService(db, aside); err != nil {
		return Services{}, fmt.Errorf("support service: %w", err)
	}
	if out.Feedbacks, err = services.NewFeedbackService(db, aside); err != nil {
		return Services{}, fmt.Errorf("feedback service: %w", err)
	}
	if out.Competitions, err = services.NewCompetitionService(db, aside); err != nil {
		return Services{}, fmt.Errorf("competition service: %w", err)
	}
	if deps.Assessor != nil {
		if out.Pronunciation, err = services.NewPronunciationService(deps.Assessor, out.Progress); err != nil {
			return Services{}, fmt.Errorf("pronunciation service: %w", err)
		}
	}
	return out, nil
}
