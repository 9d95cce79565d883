package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/imagestudio/internal/catalog"
	"github.com/digkill/imagestudio/internal/kie"
	"github.com/digkill/imagestudio/internal/kvstore"
	"github.com/digkill/imagestudio/internal/models"
	"github.com/digkill/imagestudio/pkg/logger"
)

type fakeGenerator struct {
	mu    sync.Mutex
	fail  map[kie.Model]error
	calls []kie.GenerateOptions
}

func (f *fakeGenerator) Generate(_ context.Context, model kie.Model, opts kie.GenerateOptions) (*kie.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	if err := f.fail[model]; err != nil {
		return nil, err
	}
	return &kie.Image{URL: "https://provider.example.com/" + string(model) + ".png"}, nil
}

type fakeMirror struct {
	err error
}

func (m fakeMirror) Mirror(_ context.Context, sourceURL string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "https://cdn.example.com/mirrored?src=" + sourceURL, nil
}

type generationFixture struct {
	svc           *GenerationService
	gen           *fakeGenerator
	history       *HistoryService
	subscriptions *SubscriptionService
}

func newGenerationFixture(mirror ImageMirror) generationFixture {
	store := kvstore.NewMemoryStore()
	clock := &fakeClock{t: time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)}
	history := newTestHistory(store)
	subscriptions := newTestSubscriptions(store, clock)
	gen := &fakeGenerator{fail: map[kie.Model]error{}}
	return generationFixture{
		svc:           NewGenerationService(logger.Discard(), gen, mirror, history, subscriptions),
		gen:           gen,
		history:       history,
		subscriptions: subscriptions,
	}
}

func TestGenerateRecordsEachSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newGenerationFixture(nil)

	res, err := fx.svc.Generate(ctx, GenerationRequest{
		Prompt: "  neon city  ",
		Models: []kie.Model{kie.ModelFlux2, kie.ModelNanoBananaPro},
		Tags:   []string{"night"},
	})
	require.NoError(t, err)
	require.Len(t, res.Images, 2)
	assert.Empty(t, res.Failures)
	assert.Equal(t, "neon city", res.Prompt)

	all := fx.history.GetAllImages(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, string(kie.ModelNanoBananaPro), all[0].ModelID)
	assert.Equal(t, kie.Provider, all[0].Provider)
	assert.Equal(t, models.CategoryCreative, all[0].Category)
	assert.Equal(t, []string{"night"}, all[0].Tags)
	assert.Equal(t, "https://provider.example.com/flux-2.png", all[1].ImageData)

	assert.Equal(t, 2, fx.subscriptions.GetUsageStats(ctx).ImagesUsed)
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()
	fx := newGenerationFixture(nil)

	_, err := fx.svc.Generate(context.Background(), GenerationRequest{Prompt: "   "})
	assert.ErrorIs(t, err, ErrPromptRequired)
	assert.Empty(t, fx.gen.calls)
}

func TestGenerateStopsWhenQuotaExhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newGenerationFixture(nil)

	for i := 0; i < 5; i++ {
		fx.subscriptions.RecordImageGeneration(ctx)
	}
	_, err := fx.svc.Generate(ctx, GenerationRequest{Prompt: "one more"})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Empty(t, fx.gen.calls)
	assert.Empty(t, fx.history.GetAllImages(ctx))
}

func TestGenerateCancelledSubscription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newGenerationFixture(nil)

	fx.subscriptions.CancelSubscription(ctx)
	_, err := fx.svc.Generate(ctx, GenerationRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestGenerateTemplateGating(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newGenerationFixture(nil)

	_, err := fx.svc.Generate(ctx, GenerationRequest{Prompt: "logo", TemplateID: "business-card-1"})
	assert.ErrorIs(t, err, ErrTemplateNotAllowed)

	_, err = fx.svc.Generate(ctx, GenerationRequest{Prompt: "logo", TemplateID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	res, err := fx.svc.Generate(ctx, GenerationRequest{Prompt: "quote", TemplateID: "social-card-2", Tags: []string{"Gradient", "mine"}})
	require.NoError(t, err)
	rec := res.Images[0].Record
	assert.Equal(t, models.CategorySocial, rec.Category)
	assert.Equal(t, "social-card-2", rec.Template)
	assert.Equal(t, []string{"Gradient", "mine", "motivational", "inspiring"}, rec.Tags)

	fx.subscriptions.UpgradePlan(ctx, catalog.PlanPro)
	_, err = fx.svc.Generate(ctx, GenerationRequest{Prompt: "logo", TemplateID: "business-card-1"})
	require.NoError(t, err)
}

func TestGenerateClampsResolution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newGenerationFixture(nil)

	res, err := fx.svc.Generate(ctx, GenerationRequest{Prompt: "big", Resolution: "4K"})
	require.NoError(t, err)
	assert.Equal(t, "1K", res.Resolution)
	assert.Equal(t, "1K", fx.gen.calls[0].Resolution)
	assert.Equal(t, "1:1", fx.gen.calls[0].AspectRatio)

	fx.subscriptions.UpgradePlan(ctx, catalog.PlanBasic)
	res, err = fx.svc.Generate(ctx, GenerationRequest{Prompt: "big", Resolution: "4k"})
	require.NoError(t, err)
	assert.Equal(t, "2K", res.Resolution)
}

func TestGeneratePartialFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newGenerationFixture(nil)
	fx.gen.fail[kie.ModelNanoBananaPro] = errors.New("provider down")

	res, err := fx.svc.Generate(ctx, GenerationRequest{Prompt: "x", Models: []kie.Model{kie.ModelFlux2, kie.ModelNanoBananaPro}})
	require.NoError(t, err)
	require.Len(t, res.Images, 1)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, kie.ModelNanoBananaPro, res.Failures[0].Model)
	assert.Equal(t, 1, fx.subscriptions.GetUsageStats(ctx).ImagesUsed)
}

func TestGenerateAllFail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newGenerationFixture(nil)
	fx.gen.fail[kie.ModelFlux2] = errors.New("boom")

	res, err := fx.svc.Generate(ctx, GenerationRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	require.NotNil(t, res)
	assert.Len(t, res.Failures, 1)
	assert.Empty(t, fx.history.GetAllImages(ctx))
	assert.Zero(t, fx.subscriptions.GetUsageStats(ctx).ImagesUsed)
}

func TestGenerateMirrorsImages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fx := newGenerationFixture(fakeMirror{})
	res, err := fx.svc.Generate(ctx, GenerationRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/mirrored?src=https://provider.example.com/flux-2.png", res.Images[0].Record.ImageData)

	fx = newGenerationFixture(fakeMirror{err: errors.New("bucket gone")})
	res, err = fx.svc.Generate(ctx, GenerationRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://provider.example.com/flux-2.png", res.Images[0].Record.ImageData)
}

func TestClampResolution(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1K", clampResolution("", "4096x4096"))
	assert.Equal(t, "4K", clampResolution("4K", "4096x4096"))
	assert.Equal(t, "2K", clampResolution("2K", "2048x2048"))
	assert.Equal(t, "1K", clampResolution("2K", "garbage"))
	assert.Equal(t, "1K", clampResolution("8K", "4096x4096"))
}
