package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/imagestudio/internal/catalog"
	"github.com/digkill/imagestudio/internal/kvstore"
	"github.com/digkill/imagestudio/internal/models"
)

const (
	HistoryKey = "image-generator-history"

	// MaxHistorySize is the retention cap of the history list.
	MaxHistorySize = 100
)

// ErrCorruptState marks persisted or imported data that fails strict decoding.
var ErrCorruptState = errors.New("corrupt persisted state")

type HistoryRepository struct {
	store kvstore.Store
}

func NewHistoryRepository(store kvstore.Store) *HistoryRepository {
	return &HistoryRepository{store: store}
}

// Load returns the stored records newest first. A missing key yields an empty
// slice and a nil error.
func (r *HistoryRepository) Load(ctx context.Context) ([]models.ImageRecord, error) {
	raw, ok, err := r.store.Get(ctx, HistoryKey)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !ok {
		return []models.ImageRecord{}, nil
	}
	records, err := DecodeHistory([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return records, nil
}

func (r *HistoryRepository) Save(ctx context.Context, records []models.ImageRecord) error {
	data, err := EncodeHistory(records, false)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := r.store.Set(ctx, HistoryKey, string(data)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// EncodeHistory renders records as a JSON array, indented when pretty is set.
func EncodeHistory(records []models.ImageRecord, pretty bool) ([]byte, error) {
	out := make([]models.ImageRecord, len(records))
	copy(out, records)
	for i := range out {
		if out[i].Tags == nil {
			out[i].Tags = []string{}
		}
	}
	if pretty {
		return json.MarshalIndent(out, "", "  ")
	}
	return json.Marshal(out)
}

// DecodeHistory parses a JSON array of records. A non-list or an element that
// is not a record object fails the whole decode. Template categories are
// mapped onto record categories; other values are kept as stored. Lists
// longer than the retention cap keep their newest entries.
func DecodeHistory(data []byte) ([]models.ImageRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: history is not a list", ErrCorruptState)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	records := make([]models.ImageRecord, 0, len(elements))
	for i, element := range elements {
		if t := bytes.TrimSpace(element); len(t) == 0 || t[0] != '{' {
			return nil, fmt.Errorf("%w: record %d is not an object", ErrCorruptState, i)
		}
		var rec models.ImageRecord
		if err := json.Unmarshal(element, &rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptState, i, err)
		}
		if !rec.Category.Valid() {
			if mapped, ok := catalog.RecordCategory(string(rec.Category)); ok {
				rec.Category = mapped
			}
		}
		if rec.Tags == nil {
			rec.Tags = []string{}
		}
		records = append(records, rec)
	}

	if len(records) > MaxHistorySize {
		records = records[:MaxHistorySize]
	}
	return records, nil
}
