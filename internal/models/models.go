package models

import "time"

type Category string

const (
	CategorySocial    Category = "social"
	CategoryBusiness  Category = "business"
	CategoryCreative  Category = "creative"
	CategoryMarketing Category = "marketing"
	CategoryPersonal  Category = "personal"
	CategoryEvent     Category = "event"
)

// Categories lists every record category in display order.
var Categories = []Category{
	CategorySocial,
	CategoryBusiness,
	CategoryCreative,
	CategoryMarketing,
	CategoryPersonal,
	CategoryEvent,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ImageRecord is one generated image kept in the local history.
type ImageRecord struct {
	ID        string   `json:"id"`
	Prompt    string   `json:"prompt"`
	ImageData string   `json:"imageData"`
	Provider  string   `json:"provider"`
	ModelID   string   `json:"modelId"`
	Timestamp int64    `json:"timestamp"`
	Template  string   `json:"template,omitempty"`
	Tags      []string `json:"tags"`
	Category  Category `json:"category"`
}

// NewImage carries the caller-supplied fields of a record; the store assigns
// the id and timestamp.
type NewImage struct {
	Prompt    string
	ImageData string
	Provider  string
	ModelID   string
	Template  string
	Tags      []string
	Category  Category
}

type ActivityEntry struct {
	ID        string   `json:"id"`
	Prompt    string   `json:"prompt"`
	Timestamp int64    `json:"timestamp"`
	Category  Category `json:"category"`
}

type HistoryStats struct {
	Total          int              `json:"total"`
	ByCategory     map[Category]int `json:"byCategory"`
	ByProvider     map[string]int   `json:"byProvider"`
	RecentActivity []ActivityEntry  `json:"recentActivity"`
}

type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Unlimited is the sentinel used by plan limits that have no ceiling.
const Unlimited = -1

// AllTemplates grants access to every template when listed in PlanLimits.Templates.
const AllTemplates = "*"

type PlanLimits struct {
	ImagesPerMonth  int      `json:"imagesPerMonth"`
	MaxResolution   string   `json:"maxResolution"`
	Templates       []string `json:"templates"`
	EditorAccess    bool     `json:"editorAccess"`
	Watermark       bool     `json:"watermark"`
	HistoryDays     int      `json:"historyDays"`
	APIAccess       bool     `json:"apiAccess"`
	PrioritySupport bool     `json:"prioritySupport"`
}

type Plan struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Price    float64    `json:"price"`
	Currency string     `json:"currency"`
	Interval Interval   `json:"interval"`
	Features []string   `json:"features"`
	Limits   PlanLimits `json:"limits"`
}

func (p Plan) UnlimitedImages() bool {
	return p.Limits.ImagesPerMonth < 0
}

// AllowsTemplate reports whether the plan lists the template id or the wildcard.
func (p Plan) AllowsTemplate(id string) bool {
	for _, allowed := range p.Limits.Templates {
		if allowed == AllTemplates || allowed == id {
			return true
		}
	}
	return false
}

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

type Usage struct {
	ImagesGenerated int       `json:"imagesGenerated"`
	ImagesThisMonth int       `json:"imagesThisMonth"`
	LastResetDate   time.Time `json:"lastResetDate"`
}

type UserSubscription struct {
	PlanID    string             `json:"planId"`
	Status    SubscriptionStatus `json:"status"`
	StartDate time.Time          `json:"startDate"`
	EndDate   time.Time          `json:"endDate"`
	Usage     Usage              `json:"usage"`
}

// EffectiveStatus derives expiry at read time. The stored status is never
// rewritten to expired.
func (s UserSubscription) EffectiveStatus(now time.Time) SubscriptionStatus {
	if s.Status == StatusActive && now.After(s.EndDate) {
		return StatusExpired
	}
	return s.Status
}

type UsageStats struct {
	Plan           string `json:"plan"`
	ImagesUsed     int    `json:"imagesUsed"`
	ImagesLimit    int    `json:"imagesLimit"`
	PercentageUsed int    `json:"percentageUsed"`
	CanGenerate    bool   `json:"canGenerate"`
	DaysUntilReset int    `json:"daysUntilReset"`
}
