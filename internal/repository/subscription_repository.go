package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/imagestudio/internal/catalog"
	"github.com/digkill/imagestudio/internal/kvstore"
	"github.com/digkill/imagestudio/internal/models"
)

const (
	SubscriptionKey = "user-subscription"

	subscriptionVersion = 1
)

// subscriptionDocument is the persisted envelope. Documents written before
// versioning carry no version field and decode as version 1.
type subscriptionDocument struct {
	Version   int                       `json:"version,omitempty"`
	PlanID    string                    `json:"planId"`
	Status    models.SubscriptionStatus `json:"status"`
	StartDate time.Time                 `json:"startDate"`
	EndDate   time.Time                 `json:"endDate"`
	Usage     *usageDocument            `json:"usage"`
}

type usageDocument struct {
	ImagesGenerated int       `json:"imagesGenerated"`
	ImagesThisMonth int       `json:"imagesThisMonth"`
	LastResetDate   time.Time `json:"lastResetDate"`
}

type SubscriptionRepository struct {
	store kvstore.Store
}

func NewSubscriptionRepository(store kvstore.Store) *SubscriptionRepository {
	return &SubscriptionRepository{store: store}
}

// Load returns the stored subscription; found is false when nothing is persisted.
func (r *SubscriptionRepository) Load(ctx context.Context) (sub models.UserSubscription, found bool, err error) {
	raw, ok, err := r.store.Get(ctx, SubscriptionKey)
	if err != nil {
		return models.UserSubscription{}, false, fmt.Errorf("load subscription: %w", err)
	}
	if !ok {
		return models.UserSubscription{}, false, nil
	}
	sub, err = DecodeSubscription([]byte(raw))
	if err != nil {
		return models.UserSubscription{}, false, fmt.Errorf("load subscription: %w", err)
	}
	return sub, true, nil
}

func (r *SubscriptionRepository) Save(ctx context.Context, sub models.UserSubscription) error {
	data, err := EncodeSubscription(sub)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	if err := r.store.Set(ctx, SubscriptionKey, string(data)); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func EncodeSubscription(sub models.UserSubscription) ([]byte, error) {
	return json.Marshal(subscriptionDocument{
		Version:   subscriptionVersion,
		PlanID:    sub.PlanID,
		Status:    sub.Status,
		StartDate: sub.StartDate.UTC(),
		EndDate:   sub.EndDate.UTC(),
		Usage: &usageDocument{
			ImagesGenerated: sub.Usage.ImagesGenerated,
			ImagesThisMonth: sub.Usage.ImagesThisMonth,
			LastResetDate:   sub.Usage.LastResetDate.UTC(),
		},
	})
}

// DecodeSubscription parses a persisted subscription, rejecting unknown
// versions, unknown statuses, missing dates and negative counters.
func DecodeSubscription(data []byte) (models.UserSubscription, error) {
	var doc subscriptionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.UserSubscription{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if err := validateSubscription(doc); err != nil {
		return models.UserSubscription{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	planID := doc.PlanID
	if planID == "" {
		planID = catalog.PlanFree
	}
	return models.UserSubscription{
		PlanID:    planID,
		Status:    doc.Status,
		StartDate: doc.StartDate,
		EndDate:   doc.EndDate,
		Usage: models.Usage{
			ImagesGenerated: doc.Usage.ImagesGenerated,
			ImagesThisMonth: doc.Usage.ImagesThisMonth,
			LastResetDate:   doc.Usage.LastResetDate,
		},
	}, nil
}

func validateSubscription(doc subscriptionDocument) error {
	if doc.Version != 0 && doc.Version != subscriptionVersion {
		return fmt.Errorf("unsupported version %d", doc.Version)
	}
	if !doc.Status.Valid() {
		return fmt.Errorf("unknown status %q", doc.Status)
	}
	if doc.StartDate.IsZero() || doc.EndDate.IsZero() {
		return errors.New("missing validity window")
	}
	if doc.Usage == nil {
		return errors.New("missing usage")
	}
	if doc.Usage.LastResetDate.IsZero() {
		return errors.New("missing last reset date")
	}
	if doc.Usage.ImagesGenerated < 0 || doc.Usage.ImagesThisMonth < 0 {
		return errors.New("negative usage counter")
	}
	return nil
}
