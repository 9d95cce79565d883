package catalog

import "github.com/digkill/imagestudio/internal/models"

type TemplateCategory string

const (
	TemplateCard     TemplateCategory = "card"
	TemplateFlyer    TemplateCategory = "flyer"
	TemplateSocial   TemplateCategory = "social"
	TemplateBusiness TemplateCategory = "business"
	TemplateCreative TemplateCategory = "creative"
)

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Template struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Category    TemplateCategory `json:"category"`
	Description string           `json:"description"`
	Prompt      string           `json:"prompt"`
	Dimensions  Dimensions       `json:"dimensions"`
	AspectRatio string           `json:"aspectRatio"`
	Tags        []string         `json:"tags"`
	Preview     string           `json:"preview"`
}

// HistoryCategory maps a template category onto the record categories.
func (t Template) HistoryCategory() models.Category {
	if c, ok := RecordCategory(string(t.Category)); ok {
		return c
	}
	return models.CategoryCreative
}

// RecordCategory maps a template category name onto the record categories.
func RecordCategory(name string) (models.Category, bool) {
	switch TemplateCategory(name) {
	case TemplateSocial, TemplateCard:
		return models.CategorySocial, true
	case TemplateBusiness:
		return models.CategoryBusiness, true
	case TemplateFlyer:
		return models.CategoryMarketing, true
	case TemplateCreative:
		return models.CategoryCreative, true
	default:
		return "", false
	}
}

var templates = []Template{
	{
		ID:          "social-card-1",
		Name:        "Product Card",
		Category:    TemplateSocial,
		Description: "Elegant card to present a product",
		Prompt:      "A modern product card with clean design, white background, product showcase, elegant typography, social media ready, minimalist style",
		Dimensions:  Dimensions{Width: 1080, Height: 1080},
		AspectRatio: "1:1",
		Tags:        []string{"product", "elegant", "minimalist"},
		Preview:     "/templates/social-card-1.png",
	},
	{
		ID:          "social-card-2",
		Name:        "Motivational Card",
		Category:    TemplateSocial,
		Description: "Inspiring card for followers",
		Prompt:      "Inspirational quote card with gradient background, modern typography, motivational message, social media design, vibrant colors",
		Dimensions:  Dimensions{Width: 1080, Height: 1080},
		AspectRatio: "1:1",
		Tags:        []string{"motivational", "inspiring", "gradient"},
		Preview:     "/templates/social-card-2.png",
	},
	{
		ID:          "social-card-3",
		Name:        "Event Card",
		Category:    TemplateSocial,
		Description: "Card to announce events",
		Prompt:      "Event announcement card with calendar elements, modern design, event details, professional layout, social media optimized",
		Dimensions:  Dimensions{Width: 1080, Height: 1080},
		AspectRatio: "1:1",
		Tags:        []string{"event", "calendar", "professional"},
		Preview:     "/templates/social-card-3.png",
	},
	{
		ID:          "flyer-1",
		Name:        "Promotional Flyer",
		Category:    TemplateFlyer,
		Description: "Flyer for promotions and offers",
		Prompt:      "Promotional flyer with discount elements, bold typography, attractive design, marketing layout, eye-catching colors",
		Dimensions:  Dimensions{Width: 2480, Height: 3508},
		AspectRatio: "3:4",
		Tags:        []string{"promotion", "discount", "marketing"},
		Preview:     "/templates/flyer-1.png",
	},
	{
		ID:          "flyer-2",
		Name:        "Services Flyer",
		Category:    TemplateFlyer,
		Description: "Flyer to present services",
		Prompt:      "Professional service flyer with business elements, clean layout, service highlights, modern design, corporate style",
		Dimensions:  Dimensions{Width: 2480, Height: 3508},
		AspectRatio: "3:4",
		Tags:        []string{"services", "professional", "corporate"},
		Preview:     "/templates/flyer-2.png",
	},
	{
		ID:          "business-card-1",
		Name:        "Presentation Card",
		Category:    TemplateBusiness,
		Description: "Personal or company presentation card",
		Prompt:      "Professional business presentation card with logo, contact information, modern corporate design, clean layout",
		Dimensions:  Dimensions{Width: 1080, Height: 1080},
		AspectRatio: "1:1",
		Tags:        []string{"business", "professional", "presentation"},
		Preview:     "/templates/business-card-1.png",
	},
	{
		ID:          "business-card-2",
		Name:        "Portfolio Card",
		Category:    TemplateBusiness,
		Description: "Card to show work and projects",
		Prompt:      "Portfolio showcase card with project examples, creative layout, professional presentation, modern design",
		Dimensions:  Dimensions{Width: 1080, Height: 1080},
		AspectRatio: "1:1",
		Tags:        []string{"portfolio", "projects", "creative"},
		Preview:     "/templates/business-card-2.png",
	},
	{
		ID:          "creative-1",
		Name:        "Abstract Illustration",
		Category:    TemplateCreative,
		Description: "Abstract illustration for creative use",
		Prompt:      "Abstract illustration with geometric shapes, vibrant colors, modern art style, creative design, artistic composition",
		Dimensions:  Dimensions{Width: 1920, Height: 1080},
		AspectRatio: "16:9",
		Tags:        []string{"abstract", "art", "creative"},
		Preview:     "/templates/creative-1.png",
	},
	{
		ID:          "creative-2",
		Name:        "Decorative Background",
		Category:    TemplateCreative,
		Description: "Decorative background for designs",
		Prompt:      "Decorative background with patterns, subtle design, versatile layout, modern aesthetic, wallpaper style",
		Dimensions:  Dimensions{Width: 1920, Height: 1080},
		AspectRatio: "16:9",
		Tags:        []string{"background", "decorative", "patterns"},
		Preview:     "/templates/creative-2.png",
	},
}

func Templates() []Template {
	out := make([]Template, len(templates))
	for i, t := range templates {
		out[i] = cloneTemplate(t)
	}
	return out
}

func TemplateByID(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return cloneTemplate(t), true
		}
	}
	return Template{}, false
}

func TemplatesByCategory(category TemplateCategory) []Template {
	var out []Template
	for _, t := range templates {
		if t.Category == category {
			out = append(out, cloneTemplate(t))
		}
	}
	return out
}

func cloneTemplate(t Template) Template {
	t.Tags = append([]string(nil), t.Tags...)
	return t
}
