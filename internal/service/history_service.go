package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/imagestudio/internal/models"
	"github.com/digkill/imagestudio/internal/repository"
)

const recentActivitySize = 10

// Precedence decides how a free-text query composes with a category filter.
type Precedence int

const (
	// PrecedenceSearchOverridesCategory ignores the category whenever text is present.
	PrecedenceSearchOverridesCategory Precedence = iota
	// PrecedenceSearchWithinCategory applies the text search inside the category.
	PrecedenceSearchWithinCategory
)

func ParsePrecedence(raw string) (Precedence, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "override", "search":
		return PrecedenceSearchOverridesCategory, nil
	case "within", "combine":
		return PrecedenceSearchWithinCategory, nil
	default:
		return 0, fmt.Errorf("unknown precedence %q", raw)
	}
}

// HistoryQuery filters the history. Empty fields do not filter; Tag always
// narrows the result regardless of precedence.
type HistoryQuery struct {
	Text       string
	Category   models.Category
	Tag        string
	Precedence Precedence
}

// HistoryService owns the durable list of generated images. Every call
// re-reads the persisted snapshot. Storage faults degrade reads to empty and
// turn mutations into no-ops; only corrupt data is treated as absent.
type HistoryService struct {
	mu    sync.Mutex
	repo  *repository.HistoryRepository
	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

func NewHistoryService(repo *repository.HistoryRepository, log *slog.Logger) *HistoryService {
	return &HistoryService{
		repo:  repo,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// AddImage stores a new record at the head of the history and returns it.
// The record is returned even when the write is dropped.
func (s *HistoryService) AddImage(ctx context.Context, img models.NewImage) models.ImageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags := append([]string{}, img.Tags...)
	record := models.ImageRecord{
		ID:        s.newID(),
		Prompt:    img.Prompt,
		ImageData: img.ImageData,
		Provider:  img.Provider,
		ModelID:   img.ModelID,
		Timestamp: s.now().UnixMilli(),
		Template:  img.Template,
		Tags:      tags,
		Category:  img.Category,
	}

	history, ok := s.loadForUpdate(ctx)
	if !ok {
		return record
	}
	history = append([]models.ImageRecord{record}, history...)
	if len(history) > repository.MaxHistorySize {
		history = history[:repository.MaxHistorySize]
	}
	s.save(ctx, history)
	return record
}

func (s *HistoryService) GetAllImages(ctx context.Context) []models.ImageRecord {
	return s.load(ctx)
}

func (s *HistoryService) GetImagesByCategory(ctx context.Context, category models.Category) []models.ImageRecord {
	return filterByCategory(s.load(ctx), category)
}

func (s *HistoryService) GetImagesByTag(ctx context.Context, tag string) []models.ImageRecord {
	return filterByTag(s.load(ctx), tag)
}

// SearchImages matches the query case-insensitively against prompts and tags.
func (s *HistoryService) SearchImages(ctx context.Context, query string) []models.ImageRecord {
	return search(s.load(ctx), query)
}

func (s *HistoryService) Query(ctx context.Context, q HistoryQuery) []models.ImageRecord {
	records := s.load(ctx)

	switch {
	case q.Text != "" && q.Precedence == PrecedenceSearchOverridesCategory:
		records = search(records, q.Text)
	default:
		if q.Category != "" {
			records = filterByCategory(records, q.Category)
		}
		if q.Text != "" {
			records = search(records, q.Text)
		}
	}
	if q.Tag != "" {
		records = filterByTag(records, q.Tag)
	}
	return records
}

func (s *HistoryService) DeleteImage(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.loadForUpdate(ctx)
	if !ok {
		return
	}
	kept := make([]models.ImageRecord, 0, len(history))
	for _, rec := range history {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(history) {
		return
	}
	s.save(ctx, kept)
}

func (s *HistoryService) ClearHistory(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(ctx, []models.ImageRecord{})
}

// ExportHistory renders the full history as indented JSON.
func (s *HistoryService) ExportHistory(ctx context.Context) (string, error) {
	data, err := repository.EncodeHistory(s.load(ctx), true)
	if err != nil {
		return "", fmt.Errorf("export history: %w", err)
	}
	return string(data), nil
}

// ImportHistory replaces the history with the snapshot. It reports false and
// leaves the stored history untouched unless the snapshot decodes as a list of
// valid records.
func (s *HistoryService) ImportHistory(ctx context.Context, snapshot string) bool {
	records, err := repository.DecodeHistory([]byte(snapshot))
	if err != nil {
		s.log.Warn("import history rejected", "err", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Save(ctx, records); err != nil {
		s.log.Error("import history", "err", err)
		return false
	}
	return true
}

func (s *HistoryService) GetStats(ctx context.Context) models.HistoryStats {
	history := s.load(ctx)
	stats := models.HistoryStats{
		Total:          len(history),
		ByCategory:     make(map[models.Category]int),
		ByProvider:     make(map[string]int),
		RecentActivity: make([]models.ActivityEntry, 0, recentActivitySize),
	}
	for i, rec := range history {
		stats.ByCategory[rec.Category]++
		stats.ByProvider[rec.Provider]++
		if i < recentActivitySize {
			stats.RecentActivity = append(stats.RecentActivity, models.ActivityEntry{
				ID:        rec.ID,
				Prompt:    rec.Prompt,
				Timestamp: rec.Timestamp,
				Category:  rec.Category,
			})
		}
	}
	return stats
}

func (s *HistoryService) load(ctx context.Context) []models.ImageRecord {
	records, err := s.repo.Load(ctx)
	if err != nil {
		s.log.Error("error loading history", "err", err)
		return []models.ImageRecord{}
	}
	return records
}

// loadForUpdate reads the snapshot for a read-modify-write cycle. Corrupt data
// reads as empty so it can be overwritten; any other fault reports false.
func (s *HistoryService) loadForUpdate(ctx context.Context) ([]models.ImageRecord, bool) {
	records, err := s.repo.Load(ctx)
	switch {
	case err == nil:
		return records, true
	case errors.Is(err, repository.ErrCorruptState):
		s.log.Warn("overwriting corrupt history", "err", err)
		return []models.ImageRecord{}, true
	default:
		s.log.Error("error loading history, skipping update", "err", err)
		return nil, false
	}
}

func (s *HistoryService) save(ctx context.Context, records []models.ImageRecord) {
	if err := s.repo.Save(ctx, records); err != nil {
		s.log.Error("error saving history", "err", err)
	}
}

func filterByCategory(records []models.ImageRecord, category models.Category) []models.ImageRecord {
	out := make([]models.ImageRecord, 0, len(records))
	for _, rec := range records {
		if rec.Category == category {
			out = append(out, rec)
		}
	}
	return out
}

func filterByTag(records []models.ImageRecord, tag string) []models.ImageRecord {
	needle := strings.ToLower(tag)
	out := make([]models.ImageRecord, 0, len(records))
	for _, rec := range records {
		if anyTagContains(rec.Tags, needle) {
			out = append(out, rec)
		}
	}
	return out
}

func search(records []models.ImageRecord, query string) []models.ImageRecord {
	needle := strings.ToLower(query)
	out := make([]models.ImageRecord, 0, len(records))
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Prompt), needle) || anyTagContains(rec.Tags, needle) {
			out = append(out, rec)
		}
	}
	return out
}

func anyTagContains(tags []string, needle string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
