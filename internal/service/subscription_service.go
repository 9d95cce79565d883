package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/digkill/imagestudio/internal/catalog"
	"github.com/digkill/imagestudio/internal/models"
	"github.com/digkill/imagestudio/internal/repository"
)

const subscriptionPeriod = 30 * 24 * time.Hour

// SubscriptionService keeps the plan selection and monthly usage counters.
//
// CanGenerateImage is advisory: RecordImageGeneration never consults it, so
// callers own quota enforcement. The monthly counter only resets on the
// recording path, which means CanGenerateImage may report the previous
// month's exhausted quota until the first generation of a new month.
// Mutations are skipped when the stored subscription cannot be read.
type SubscriptionService struct {
	mu   sync.Mutex
	repo *repository.SubscriptionRepository
	log  *slog.Logger
	now  func() time.Time
}

func NewSubscriptionService(repo *repository.SubscriptionRepository, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

func (s *SubscriptionService) GetCurrentPlan(ctx context.Context) models.Plan {
	return planFor(s.GetUserSubscription(ctx))
}

// GetUserSubscription returns the persisted subscription, or fresh defaults
// when nothing usable is stored. Defaults are not written back.
func (s *SubscriptionService) GetUserSubscription(ctx context.Context) models.UserSubscription {
	sub, found, err := s.repo.Load(ctx)
	if err != nil {
		s.log.Error("error loading subscription", "err", err)
		return s.defaultSubscription()
	}
	if !found {
		return s.defaultSubscription()
	}
	return sub
}

func (s *SubscriptionService) CanGenerateImage(ctx context.Context) bool {
	sub := s.GetUserSubscription(ctx)
	return canGenerate(sub, planFor(sub), s.now())
}

// RecordImageGeneration counts one generated image, rolling the monthly
// counter over first when the calendar month changed since the last reset.
func (s *SubscriptionService) RecordImageGeneration(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.loadForUpdate(ctx)
	if !ok {
		return
	}
	now := s.now()

	last := sub.Usage.LastResetDate.In(now.Location())
	if last.Month() != now.Month() || last.Year() != now.Year() {
		sub.Usage.ImagesThisMonth = 0
		sub.Usage.LastResetDate = now
	}
	sub.Usage.ImagesGenerated++
	sub.Usage.ImagesThisMonth++

	s.save(ctx, sub)
}

func (s *SubscriptionService) GetUsageStats(ctx context.Context) models.UsageStats {
	sub := s.GetUserSubscription(ctx)
	plan := planFor(sub)
	now := s.now()

	limit := plan.Limits.ImagesPerMonth
	percentage := 0
	if !plan.UnlimitedImages() && limit > 0 {
		percentage = int(math.Round(float64(sub.Usage.ImagesThisMonth) / float64(limit) * 100))
	}

	return models.UsageStats{
		Plan:           plan.Name,
		ImagesUsed:     sub.Usage.ImagesThisMonth,
		ImagesLimit:    limit,
		PercentageUsed: percentage,
		CanGenerate:    canGenerate(sub, plan, now),
		DaysUntilReset: daysUntilReset(now),
	}
}

// UpgradePlan switches to planID and restarts the validity window. Unknown
// ids are ignored; usage counters are kept.
func (s *SubscriptionService) UpgradePlan(ctx context.Context, planID string) {
	if _, ok := catalog.FindPlan(planID); !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.loadForUpdate(ctx)
	if !ok {
		return
	}
	now := s.now()
	sub.PlanID = planID
	sub.StartDate = now
	sub.EndDate = now.Add(subscriptionPeriod)
	sub.Status = models.StatusActive

	s.save(ctx, sub)
}

// CancelSubscription marks the subscription cancelled; plan, dates and usage stay.
func (s *SubscriptionService) CancelSubscription(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.loadForUpdate(ctx)
	if !ok {
		return
	}
	sub.Status = models.StatusCancelled
	s.save(ctx, sub)
}

func (s *SubscriptionService) defaultSubscription() models.UserSubscription {
	now := s.now()
	return models.UserSubscription{
		PlanID:    catalog.PlanFree,
		Status:    models.StatusActive,
		StartDate: now,
		EndDate:   now.Add(subscriptionPeriod),
		Usage: models.Usage{
			LastResetDate: now,
		},
	}
}

// loadForUpdate reads the subscription for a read-modify-write cycle. Missing
// or corrupt data yields defaults; any other fault reports false.
func (s *SubscriptionService) loadForUpdate(ctx context.Context) (models.UserSubscription, bool) {
	sub, found, err := s.repo.Load(ctx)
	switch {
	case err == nil && found:
		return sub, true
	case err == nil:
		return s.defaultSubscription(), true
	case errors.Is(err, repository.ErrCorruptState):
		s.log.Warn("overwriting corrupt subscription", "err", err)
		return s.defaultSubscription(), true
	default:
		s.log.Error("error loading subscription, skipping update", "err", err)
		return models.UserSubscription{}, false
	}
}

func (s *SubscriptionService) save(ctx context.Context, sub models.UserSubscription) {
	if err := s.repo.Save(ctx, sub); err != nil {
		s.log.Error("error saving subscription", "err", err)
	}
}

func planFor(sub models.UserSubscription) models.Plan {
	if plan, ok := catalog.FindPlan(sub.PlanID); ok {
		return plan
	}
	return catalog.DefaultPlan()
}

func canGenerate(sub models.UserSubscription, plan models.Plan, now time.Time) bool {
	if sub.Status != models.StatusActive || now.After(sub.EndDate) {
		return false
	}
	if !plan.UnlimitedImages() && sub.Usage.ImagesThisMonth >= plan.Limits.ImagesPerMonth {
		return false
	}
	return true
}

// daysUntilReset counts days, rounded up, until the first of next month.
func daysUntilReset(now time.Time) int {
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
	return int(math.Ceil(next.Sub(now).Hours() / 24))
}
