package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/multiguard/internal/cache"
	"github.com/charlesng35/multiguard/internal/models"
)

// Handler persists session attribute bags.
type Handler interface {
	Read(ctx context.Context, id string) (map[string]string, error)
	Write(ctx context.Context, id string, values map[string]string, meta Meta) error
	Destroy(ctx context.Context, id string) error
}

// Meta describes the request that last touched a session.
type Meta struct {
	IPAddress string
	UserAgent string
	Lifetime  time.Duration
}

// CacheHandler stores sessions as JSON in a cache.Store.
type CacheHandler struct {
	store  cache.Store
	prefix string
}

// NewCacheHandler wraps store. Keys are namespaced with "session:".
func NewCacheHandler(store cache.Store) *CacheHandler {
	return &CacheHandler{store: store, prefix: "session:"}
}

func (h *CacheHandler) Read(ctx context.Context, id string) (map[string]string, error) {
	raw, ok, err := h.store.Get(ctx, h.prefix+id)
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	values := make(map[string]string)
	if err := json.Unmarshal(raw, &values); err != nil {
		// A corrupt payload is treated as an empty session.
		return nil, nil
	}
	return values, nil
}

func (h *CacheHandler) Write(ctx context.Context, id string, values map[string]string, meta Meta) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	if err := h.store.Set(ctx, h.prefix+id, raw, meta.Lifetime); err != nil {
		return fmt.Errorf("session: write %s: %w", id, err)
	}
	return nil
}

func (h *CacheHandler) Destroy(ctx context.Context, id string) error {
	return h.store.Delete(ctx, h.prefix+id)
}

// DatabaseHandler stores sessions in the web_sessions table.
type DatabaseHandler struct {
	db       *gorm.DB
	lifetime time.Duration
	clock    func() time.Time
}

// NewDatabaseHandler builds a handler whose rows expire lifetime after their
// last activity.
func NewDatabaseHandler(db *gorm.DB, lifetime time.Duration, clock func() time.Time) *DatabaseHandler {
	if clock == nil {
		clock = time.Now
	}
	return &DatabaseHandler{db: db, lifetime: lifetime, clock: clock}
}

func (h *DatabaseHandler) Read(ctx context.Context, id string) (map[string]string, error) {
	var row models.WebSession
	err := h.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", id, err)
	}
	if h.lifetime > 0 && !h.clock().Before(row.LastActivity.Add(h.lifetime)) {
		return nil, nil
	}

	values := make(map[string]string, len(row.Payload))
	for k, v := range row.Payload {
		if s, ok := v.(string); ok {
			values[k] = s
		}
	}
	return values, nil
}

func (h *DatabaseHandler) Write(ctx context.Context, id string, values map[string]string, meta Meta) error {
	payload := make(map[string]interface{}, len(values))
	for k, v := range values {
		payload[k] = v
	}
	row := models.WebSession{
		ID:           id,
		Payload:      payload,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		LastActivity: h.clock(),
	}
	err := h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "ip_address", "user_agent", "last_activity"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("session: write %s: %w", id, err)
	}
	return nil
}

func (h *DatabaseHandler) Destroy(ctx context.Context, id string) error {
	return h.db.WithContext(ctx).Delete(&models.WebSession{}, "id = ?", id).Error
}

// PruneExpired removes sessions idle for longer than the lifetime.
func (h *DatabaseHandler) PruneExpired(ctx context.Context) (int64, error) {
	if h.lifetime <= 0 {
		return 0, nil
	}
	res := h.db.WithContext(ctx).
		Where("last_activity <= ?", h.clock().Add(-h.lifetime)).
		Delete(&models.WebSession{})
	return res.RowsAffected, res.Error
}
