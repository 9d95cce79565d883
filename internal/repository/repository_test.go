package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/imagestudio/internal/kvstore"
	"github.com/digkill/imagestudio/internal/models"
)

func TestHistoryLoadMissingKey(t *testing.T) {
	t.Parallel()

	repo := NewHistoryRepository(kvstore.NewMemoryStore())
	records, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHistorySaveLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewHistoryRepository(kvstore.NewMemoryStore())
	in := []models.ImageRecord{
		{ID: "b", Prompt: "second", Provider: "kie", ModelID: "flux-2", Timestamp: 2, Category: models.CategoryEvent, Tags: []string{"x", "x"}},
		{ID: "a", Prompt: "first", Provider: "kie", ModelID: "flux-2", Timestamp: 1, Category: models.CategorySocial, Template: "social-card-1"},
	}
	require.NoError(t, repo.Save(ctx, in))

	out, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, []string{"x", "x"}, out[0].Tags)
	assert.Equal(t, []string{}, out[1].Tags)
	assert.Equal(t, "social-card-1", out[1].Template)
	assert.Nil(t, in[1].Tags, "encoding must not touch the caller's slice")
}

func TestHistoryLoadCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := kvstore.NewMemoryStore()
	require.NoError(t, store.Set(ctx, HistoryKey, "{not json"))

	_, err := NewHistoryRepository(store).Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestHistoryLoadUnavailable(t *testing.T) {
	t.Parallel()

	_, err := NewHistoryRepository(kvstore.Unavailable{}).Load(context.Background())
	assert.ErrorIs(t, err, kvstore.ErrUnavailable)
}

func TestDecodeHistoryRejectsBadShapes(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"object":       `{}`,
		"string":       `"not an array"`,
		"null":         `null`,
		"empty":        ``,
		"null element": `[null]`,
		"number":       `[1, 2]`,
		"wrong type":   `[{"id":"1","category":"social","timestamp":"yesterday"}]`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeHistory([]byte(input))
			assert.ErrorIs(t, err, ErrCorruptState)
		})
	}
}

func TestDecodeHistoryAcceptsLooseRecords(t *testing.T) {
	t.Parallel()

	input := `[
		{"id":"1","prompt":"card","category":"card"},
		{"id":"1","prompt":"flyer","category":"flyer"},
		{"prompt":"no id","category":"mystery"}
	]`
	out, err := DecodeHistory([]byte(input))
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, models.CategorySocial, out[0].Category)
	assert.Equal(t, models.CategoryMarketing, out[1].Category)
	assert.Equal(t, "1", out[1].ID)
	assert.Empty(t, out[2].ID)
	assert.Equal(t, models.Category("mystery"), out[2].Category)
	assert.Equal(t, []string{}, out[2].Tags)
}

func TestDecodeHistoryTruncatesToCap(t *testing.T) {
	t.Parallel()

	records := make([]models.ImageRecord, MaxHistorySize+5)
	for i := range records {
		records[i] = models.ImageRecord{ID: fmt.Sprintf("id-%d", i), Category: models.CategoryCreative}
	}
	data, err := EncodeHistory(records, false)
	require.NoError(t, err)

	out, err := DecodeHistory(data)
	require.NoError(t, err)
	require.Len(t, out, MaxHistorySize)
	assert.Equal(t, "id-0", out[0].ID)
	assert.Equal(t, fmt.Sprintf("id-%d", MaxHistorySize-1), out[MaxHistorySize-1].ID)
}

func TestEncodeHistoryPretty(t *testing.T) {
	t.Parallel()

	data, err := EncodeHistory(nil, true)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = EncodeHistory([]models.ImageRecord{{ID: "1", Category: models.CategorySocial}}, true)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"id\": \"1\"")
}

func TestSubscriptionRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	sub := models.UserSubscription{
		PlanID:    "pro",
		Status:    models.StatusCancelled,
		StartDate: start,
		EndDate:   start.Add(30 * 24 * time.Hour),
		Usage: models.Usage{
			ImagesGenerated: 12,
			ImagesThisMonth: 3,
			LastResetDate:   start,
		},
	}

	repo := NewSubscriptionRepository(kvstore.NewMemoryStore())
	_, found, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Save(ctx, sub))
	got, found, err := repo.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sub.PlanID, got.PlanID)
	assert.Equal(t, sub.Status, got.Status)
	assert.True(t, sub.StartDate.Equal(got.StartDate))
	assert.True(t, sub.EndDate.Equal(got.EndDate))
	assert.Equal(t, sub.Usage.ImagesGenerated, got.Usage.ImagesGenerated)
	assert.Equal(t, sub.Usage.ImagesThisMonth, got.Usage.ImagesThisMonth)
	assert.True(t, sub.Usage.LastResetDate.Equal(got.Usage.LastResetDate))
}

func TestDecodeSubscriptionAcceptsUnversionedDocument(t *testing.T) {
	t.Parallel()

	raw := `{"planId":"basic","status":"active","startDate":"2026-01-10T12:00:00.000Z","endDate":"2026-02-09T12:00:00.000Z","usage":{"imagesGenerated":7,"imagesThisMonth":2,"lastResetDate":"2026-01-10T12:00:00.000Z"}}`
	sub, err := DecodeSubscription([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "basic", sub.PlanID)
	assert.Equal(t, 2, sub.Usage.ImagesThisMonth)
	assert.Equal(t, time.January, sub.StartDate.Month())
}

func TestDecodeSubscriptionDefaultsPlanID(t *testing.T) {
	t.Parallel()

	raw := `{"version":1,"status":"active","startDate":"2026-01-10T12:00:00Z","endDate":"2026-02-09T12:00:00Z","usage":{"imagesGenerated":0,"imagesThisMonth":0,"lastResetDate":"2026-01-10T12:00:00Z"}}`
	sub, err := DecodeSubscription([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "free", sub.PlanID)
}

func TestDecodeSubscriptionFailsClosed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"garbage":       `nope`,
		"array":         `[]`,
		"future":        `{"version":2,"planId":"free","status":"active","startDate":"2026-01-10T12:00:00Z","endDate":"2026-02-09T12:00:00Z","usage":{"lastResetDate":"2026-01-10T12:00:00Z"}}`,
		"bad status":    `{"planId":"free","status":"paused","startDate":"2026-01-10T12:00:00Z","endDate":"2026-02-09T12:00:00Z","usage":{"lastResetDate":"2026-01-10T12:00:00Z"}}`,
		"no usage":      `{"planId":"free","status":"active","startDate":"2026-01-10T12:00:00Z","endDate":"2026-02-09T12:00:00Z"}`,
		"no dates":      `{"planId":"free","status":"active","usage":{"lastResetDate":"2026-01-10T12:00:00Z"}}`,
		"bad date":      `{"planId":"free","status":"active","startDate":"soon","endDate":"2026-02-09T12:00:00Z","usage":{"lastResetDate":"2026-01-10T12:00:00Z"}}`,
		"negative":      `{"planId":"free","status":"active","startDate":"2026-01-10T12:00:00Z","endDate":"2026-02-09T12:00:00Z","usage":{"imagesThisMonth":-1,"lastResetDate":"2026-01-10T12:00:00Z"}}`,
		"no last reset": `{"planId":"free","status":"active","startDate":"2026-01-10T12:00:00Z","endDate":"2026-02-09T12:00:00Z","usage":{"imagesThisMonth":1}}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSubscription([]byte(input))
			assert.ErrorIs(t, err, ErrCorruptState)
		})
	}
}
