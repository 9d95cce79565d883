package catalog

import "github.com/digkill/imagestudio/internal/models"

const (
	PlanFree     = "free"
	PlanBasic    = "basic"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

var plans = []models.Plan{
	{
		ID:       PlanFree,
		Name:     "Free",
		Price:    0,
		Currency: "BRL",
		Interval: models.IntervalMonth,
		Features: []string{
			"5 images per month",
			"Basic templates",
			"Standard resolution",
			"Watermarked",
		},
		Limits: models.PlanLimits{
			ImagesPerMonth:  5,
			MaxResolution:   "1024x1024",
			Templates:       []string{"social-card-1", "social-card-2"},
			EditorAccess:    false,
			Watermark:       true,
			HistoryDays:     7,
			APIAccess:       false,
			PrioritySupport: false,
		},
	},
	{
		ID:       PlanBasic,
		Name:     "Basic",
		Price:    19.90,
		Currency: "BRL",
		Interval: models.IntervalMonth,
		Features: []string{
			"50 images per month",
			"All templates",
			"High resolution",
			"Basic editor",
			"No watermark",
			"30-day history",
		},
		Limits: models.PlanLimits{
			ImagesPerMonth:  50,
			MaxResolution:   "2048x2048",
			Templates:       []string{"social-card-1", "social-card-2", "social-card-3", "flyer-1", "flyer-2"},
			EditorAccess:    true,
			Watermark:       false,
			HistoryDays:     30,
			APIAccess:       false,
			PrioritySupport: false,
		},
	},
	{
		ID:       PlanPro,
		Name:     "Pro",
		Price:    39.90,
		Currency: "BRL",
		Interval: models.IntervalMonth,
		Features: []string{
			"200 images per month",
			"Exclusive templates",
			"Maximum resolution",
			"Advanced editor",
			"Unlimited history",
			"Bulk export",
			"API access",
		},
		Limits: models.PlanLimits{
			ImagesPerMonth:  200,
			MaxResolution:   "4096x4096",
			Templates:       []string{models.AllTemplates},
			EditorAccess:    true,
			Watermark:       false,
			HistoryDays:     models.Unlimited,
			APIAccess:       true,
			PrioritySupport: false,
		},
	},
	{
		ID:       PlanBusiness,
		Name:     "Business",
		Price:    99.90,
		Currency: "BRL",
		Interval: models.IntervalMonth,
		Features: []string{
			"1000 images per month",
			"Custom templates",
			"Priority support",
			"White-label",
			"API integrations",
			"Advanced reports",
		},
		Limits: models.PlanLimits{
			ImagesPerMonth:  1000,
			MaxResolution:   "4096x4096",
			Templates:       []string{models.AllTemplates},
			EditorAccess:    true,
			Watermark:       false,
			HistoryDays:     models.Unlimited,
			APIAccess:       true,
			PrioritySupport: true,
		},
	},
}

// Plans returns a copy of the fixed plan catalog, cheapest first.
func Plans() []models.Plan {
	out := make([]models.Plan, len(plans))
	for i, p := range plans {
		out[i] = clonePlan(p)
	}
	return out
}

// FindPlan looks a plan up by id.
func FindPlan(id string) (models.Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return clonePlan(p), true
		}
	}
	return models.Plan{}, false
}

// DefaultPlan is the first catalog entry, used whenever a plan id does not resolve.
func DefaultPlan() models.Plan {
	return clonePlan(plans[0])
}

func clonePlan(p models.Plan) models.Plan {
	p.Features = append([]string(nil), p.Features...)
	p.Limits.Templates = append([]string(nil), p.Limits.Templates...)
	return p
}
