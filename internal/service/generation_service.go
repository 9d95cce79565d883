package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/digkill/imagestudio/internal/catalog"
	"github.com/digkill/imagestudio/internal/kie"
	"github.com/digkill/imagestudio/internal/models"
)

var (
	ErrPromptRequired     = errors.New("prompt cannot be empty")
	ErrQuotaExceeded      = errors.New("monthly image quota reached for current plan")
	ErrTemplateNotAllowed = errors.New("template not available on current plan")
	ErrUnknownTemplate    = errors.New("unknown template")
)

// ImageGenerator produces one image for a model; *kie.Client satisfies it.
type ImageGenerator interface {
	Generate(ctx context.Context, model kie.Model, opts kie.GenerateOptions) (*kie.Image, error)
}

// ImageMirror copies a provider result into durable storage.
type ImageMirror interface {
	Mirror(ctx context.Context, sourceURL string) (string, error)
}

type GenerationService struct {
	log           *slog.Logger
	generator     ImageGenerator
	mirror        ImageMirror
	history       *HistoryService
	subscriptions *SubscriptionService
}

type GenerationRequest struct {
	Prompt       string
	Models       []kie.Model
	TemplateID   string
	AspectRatio  string
	Resolution   string
	InputURLs    []string
	OutputFormat string
	Tags         []string
	Category     models.Category
}

type GeneratedImage struct {
	Model  kie.Model          `json:"model"`
	Record models.ImageRecord `json:"record"`
}

type GenerationFailure struct {
	Model kie.Model `json:"model"`
	Error string    `json:"error"`
}

type GenerationResult struct {
	Prompt     string              `json:"prompt"`
	Resolution string              `json:"resolution"`
	Images     []GeneratedImage    `json:"images"`
	Failures   []GenerationFailure `json:"failures"`
}

// NewGenerationService wires the provider to the bookkeeping services. mirror
// may be nil, in which case provider URLs are recorded as returned.
func NewGenerationService(log *slog.Logger, generator ImageGenerator, mirror ImageMirror, history *HistoryService, subscriptions *SubscriptionService) *GenerationService {
	return &GenerationService{
		log:           log,
		generator:     generator,
		mirror:        mirror,
		history:       history,
		subscriptions: subscriptions,
	}
}

// Generate gates the request on the current plan, dispatches every target
// model concurrently and records each success. One eligibility check covers
// the whole request. The error is non-nil only when the request was rejected
// or every target failed.
func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, ErrPromptRequired
	}

	plan := s.subscriptions.GetCurrentPlan(ctx)
	category := req.Category
	tags := append([]string{}, req.Tags...)
	if req.TemplateID != "" {
		tpl, ok := catalog.TemplateByID(req.TemplateID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, req.TemplateID)
		}
		if !plan.AllowsTemplate(tpl.ID) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotAllowed, tpl.ID)
		}
		if !category.Valid() {
			category = tpl.HistoryCategory()
		}
		if req.AspectRatio == "" {
			req.AspectRatio = tpl.AspectRatio
		}
		tags = mergeTags(tags, tpl.Tags)
	}
	if !category.Valid() {
		category = models.CategoryCreative
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "1:1"
	}

	if !s.subscriptions.CanGenerateImage(ctx) {
		return nil, ErrQuotaExceeded
	}

	targets := req.Models
	if len(targets) == 0 {
		targets = []kie.Model{kie.ModelFlux2}
	}
	resolution := clampResolution(req.Resolution, plan.Limits.MaxResolution)
	opts := kie.GenerateOptions{
		Prompt:       req.Prompt,
		AspectRatio:  req.AspectRatio,
		Resolution:   resolution,
		InputURLs:    req.InputURLs,
		OutputFormat: req.OutputFormat,
	}

	type outcome struct {
		image *kie.Image
		err   error
	}
	outcomes := make([]outcome, len(targets))
	var wg sync.WaitGroup
	for i, model := range targets {
		wg.Add(1)
		go func(i int, model kie.Model) {
			defer wg.Done()
			img, err := s.generator.Generate(ctx, model, opts)
			outcomes[i] = outcome{image: img, err: err}
		}(i, model)
	}
	wg.Wait()

	result := &GenerationResult{
		Prompt:     req.Prompt,
		Resolution: resolution,
		Images:     make([]GeneratedImage, 0, len(targets)),
		Failures:   make([]GenerationFailure, 0),
	}
	var errs []error
	for i, model := range targets {
		out := outcomes[i]
		if out.err == nil && (out.image == nil || out.image.URL == "") {
			out.err = errors.New("provider returned no image")
		}
		if out.err != nil {
			s.log.Error("generation failed", "model", model, "err", out.err)
			result.Failures = append(result.Failures, GenerationFailure{Model: model, Error: out.err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", model, out.err))
			continue
		}

		imageURL := out.image.URL
		if s.mirror != nil {
			mirrored, err := s.mirror.Mirror(ctx, imageURL)
			if err != nil {
				s.log.Warn("mirror image failed, keeping provider url", "model", model, "err", err)
			} else {
				imageURL = mirrored
			}
		}

		s.subscriptions.RecordImageGeneration(ctx)
		record := s.history.AddImage(ctx, models.NewImage{
			Prompt:    req.Prompt,
			ImageData: imageURL,
			Provider:  kie.Provider,
			ModelID:   string(model),
			Template:  req.TemplateID,
			Tags:      tags,
			Category:  category,
		})
		result.Images = append(result.Images, GeneratedImage{Model: model, Record: record})
	}

	if len(result.Images) == 0 {
		return result, fmt.Errorf("all models failed: %w", errors.Join(errs...))
	}
	return result, nil
}

var resolutionTiers = []string{"1K", "2K", "4K"}

// clampResolution caps the requested tier at the plan's maximum. Plans state
// their ceiling as WIDTHxHEIGHT.
func clampResolution(requested, planMax string) string {
	want := tierIndex(requested)
	if want < 0 {
		want = 0
	}
	limit := planTier(planMax)
	if want > limit {
		want = limit
	}
	return resolutionTiers[want]
}

func tierIndex(res string) int {
	for i, tier := range resolutionTiers {
		if strings.EqualFold(strings.TrimSpace(res), tier) {
			return i
		}
	}
	return -1
}

func planTier(maxResolution string) int {
	width, _, _ := strings.Cut(strings.ToLower(maxResolution), "x")
	w, err := strconv.Atoi(strings.TrimSpace(width))
	switch {
	case err != nil:
		return 0
	case w >= 4096:
		return 2
	case w >= 2048:
		return 1
	default:
		return 0
	}
}

func mergeTags(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, tag := range append(base, extra...) {
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok || tag == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}
