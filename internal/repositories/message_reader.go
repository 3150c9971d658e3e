package repositories

import (
	"context"
	"time"

	"convo-service/internal/models"
)

// MessageReader is the read-path strategy for message pagination. Two
// implementations exist while the storage migration is in flight: the
// dedicated store and the legacy embedded array. DualReader selects between
// them per chat; it can be replaced by the store reader alone once every
// legacy chat has been retired.
type MessageReader interface {
	ReadPage(ctx context.Context, chat models.Chat, page, limit int, cursor *time.Time) ([]models.Message, models.PageInfo, error)
}

// DualReader reads the dedicated store first and falls back to the legacy
// embedded array only when the store holds nothing for the chat.
type DualReader struct {
	store MessageRepository
}

// NewDualReader constructs a DualReader over the dedicated store.
func NewDualReader(store MessageRepository) *DualReader {
	return &DualReader{store: store}
}

// ReadPage returns one newest-first page plus pagination metadata. Both the
// store and the legacy path yield the same shape.
func (r *DualReader) ReadPage(ctx context.Context, chat models.Chat, page, limit int, cursor *time.Time) ([]models.Message, models.PageInfo, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	total, err := r.store.CountForChat(ctx, chat.ID)
	if err != nil {
		return nil, models.PageInfo{}, err
	}

	if total > 0 || len(chat.LegacyMessages) == 0 {
		var msgs []models.Message
		if cursor != nil {
			msgs, err = r.store.ListBefore(ctx, chat.ID, *cursor, limit)
		} else {
			msgs, err = r.store.ListPage(ctx, chat.ID, limit, (page-1)*limit)
		}
		if err != nil {
			return nil, models.PageInfo{}, err
		}
		return msgs, pageInfo(page, limit, total), nil
	}

	return r.readLegacy(chat, page, limit)
}

func (r *DualReader) readLegacy(chat models.Chat, page, limit int) ([]models.Message, models.PageInfo, error) {
	legacy, err := chat.DecodeLegacyMessages()
	if err != nil {
		return nil, models.PageInfo{}, err
	}

	start, length := LegacySlice(len(legacy), page, limit)
	if length <= 0 {
		return []models.Message{}, pageInfo(page, limit, len(legacy)), nil
	}

	// The embedded array is chronological; reverse the slice so the page is
	// newest-first like the dedicated store path.
	window := legacy[start : start+length]
	msgs := make([]models.Message, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		msgs = append(msgs, window[i])
	}
	return msgs, pageInfo(page, limit, len(legacy)), nil
}

// LegacySlice computes the chronological window for one newest-first page of
// an embedded legacy array of the given total length. A negative start is
// clamped to zero with the window shrunk accordingly; a non-positive length
// means the page is past the oldest message.
func LegacySlice(total, page, limit int) (start, length int) {
	start = total - page*limit
	length = limit
	if start < 0 {
		length += start
		start = 0
	}
	return start, length
}

func pageInfo(page, limit, total int) models.PageInfo {
	totalPages := (total + limit - 1) / limit
	return models.PageInfo{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page*limit < total,
		HasPrev:    page > 1,
	}
}
