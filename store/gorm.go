package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/roundtable/internal/database"
	"github.com/BaSui01/roundtable/types"
)

const conversationRowID = "default"

// =============================================================================
// 🗄️ 表模型
// =============================================================================

type conversationRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Document  string `gorm:"not null"`
	Version   int64  `gorm:"not null;default:0"`
	UpdatedAt int64  `gorm:"autoUpdateTime:false"`
}

func (conversationRow) TableName() string { return "rt_conversations" }

type archiveRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	ArchivedAt   int64  `gorm:"index;not null"`
	MessageCount int64  `gorm:"not null"`
	StartTime    int64
	EndTime      int64
	Preview      string `gorm:"size:512"`
	Trigger      string `gorm:"size:16"`
	Messages     string `gorm:"not null"`
}

func (archiveRow) TableName() string { return "rt_archives" }

type personaStatRow struct {
	PersonaKey   string `gorm:"primaryKey;size:64"`
	MessageCount int64  `gorm:"not null;default:0"`
	LastActive   int64  `gorm:"not null;default:0"`
}

func (personaStatRow) TableName() string { return "rt_persona_stats" }

type contextEntryRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Kind      string `gorm:"size:16;not null"`
	Title     string `gorm:"size:255"`
	Content   string `gorm:"not null"`
	Status    string `gorm:"size:16"`
	CreatedAt int64  `gorm:"index;not null;autoCreateTime:false"`
}

func (contextEntryRow) TableName() string { return "rt_context_entries" }

func toArchiveRow(rec types.ArchiveRecord) (archiveRow, error) {
	msgs, err := json.Marshal(rec.Messages)
	if err != nil {
		return archiveRow{}, fmt.Errorf("failed to marshal archive messages: %w", err)
	}
	return archiveRow{
		ID:           rec.ID,
		ArchivedAt:   rec.ArchivedAt,
		MessageCount: rec.MessageCount,
		StartTime:    rec.StartTime,
		EndTime:      rec.EndTime,
		Preview:      rec.Preview,
		Trigger:      string(rec.Trigger),
		Messages:     string(msgs),
	}, nil
}

func (r archiveRow) record() (types.ArchiveRecord, error) {
	rec := types.ArchiveRecord{
		ID:           r.ID,
		ArchivedAt:   r.ArchivedAt,
		MessageCount: r.MessageCount,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Preview:      r.Preview,
		Trigger:      types.ArchiveTrigger(r.Trigger),
	}
	if err := json.Unmarshal([]byte(r.Messages), &rec.Messages); err != nil {
		return types.ArchiveRecord{}, fmt.Errorf("failed to unmarshal archive %s: %w", r.ID, err)
	}
	return rec, nil
}

// =============================================================================
// 🎯 GormStore
// =============================================================================

// GormStore is a relational implementation of Store (sqlite/postgres/mysql).
// The conversation document is a JSON column guarded by a version counter.
type GormStore struct {
	pool        *database.PoolManager
	maxAttempts int
}

// NewGormStore creates a store on top of a pool manager
func NewGormStore(pool *database.PoolManager, maxAttempts int) *GormStore {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &GormStore{pool: pool, maxAttempts: maxAttempts}
}

// AutoMigrate creates or updates the tables
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.pool.DB().WithContext(ctx).AutoMigrate(
		&conversationRow{},
		&archiveRow{},
		&personaStatRow{},
		&contextEntryRow{},
	)
}

func (s *GormStore) db(ctx context.Context) *gorm.DB {
	return s.pool.DB().WithContext(ctx)
}

// Conversation returns the current state, creating it if absent
func (s *GormStore) Conversation(ctx context.Context, now int64) (*types.ConversationState, error) {
	doc, err := json.Marshal(types.NewConversationState(now))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	err = s.db(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&conversationRow{ID: conversationRowID, Document: string(doc), Version: 1, UpdatedAt: now}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to initialise conversation: %w", err)
	}

	var row conversationRow
	if err := s.db(ctx).Where("id = ?", conversationRowID).Take(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return decodeState(row.Document)
}

func decodeState(doc string) (*types.ConversationState, error) {
	var state types.ConversationState
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	if state.Messages == nil {
		state.Messages = []types.Message{}
	}
	return &state, nil
}

// Update runs fn in a DB transaction and commits with a version check
func (s *GormStore) Update(ctx context.Context, now int64, fn func(txn *Txn) error) (*Commit, error) {
	var commit *Commit

	err := retryOptimistic(ctx, s.maxAttempts, func() error {
		return s.pool.WithTransactionRetry(ctx, s.maxAttempts, func(tx *gorm.DB) error {
			var row conversationRow
			var txn *Txn

			err := tx.Where("id = ?", conversationRowID).Take(&row).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				txn = newTxn(types.NewConversationState(now), true)
			case err != nil:
				return fmt.Errorf("failed to load conversation: %w", err)
			default:
				state, err := decodeState(row.Document)
				if err != nil {
					return err
				}
				txn = newTxn(state, false)
			}

			if err := runCallback(fn, txn); err != nil {
				return err
			}
			if !txn.dirty {
				commit = txn.commit()
				return nil
			}

			doc, err := json.Marshal(txn.State)
			if err != nil {
				return fmt.Errorf("failed to marshal conversation: %w", err)
			}

			if txn.created {
				res := tx.Clauses(clause.OnConflict{DoNothing: true}).
					Create(&conversationRow{ID: conversationRowID, Document: string(doc), Version: 1, UpdatedAt: now})
				if res.Error != nil {
					return fmt.Errorf("failed to create conversation: %w", res.Error)
				}
				if res.RowsAffected == 0 {
					return errRetry
				}
			} else {
				res := tx.Model(&conversationRow{}).
					Where("id = ? AND version = ?", conversationRowID, row.Version).
					Updates(map[string]any{
						"document":   string(doc),
						"version":    row.Version + 1,
						"updated_at": now,
					})
				if res.Error != nil {
					return fmt.Errorf("failed to update conversation: %w", res.Error)
				}
				if res.RowsAffected == 0 {
					return errRetry
				}
			}

			for _, rec := range txn.archives {
				ar, err := toArchiveRow(rec)
				if err != nil {
					return err
				}
				if err := tx.Create(&ar).Error; err != nil {
					return fmt.Errorf("failed to insert archive: %w", err)
				}
			}

			commit = txn.commit()
			return nil
		})
	})
	if err != nil {
		return nil, unwrapCallback(err)
	}
	return commit, nil
}

// Archive returns an archive record by id
func (s *GormStore) Archive(ctx context.Context, id string) (*types.ArchiveRecord, error) {
	var row archiveRow
	err := s.db(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive: %w", err)
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListArchives returns the newest records first
func (s *GormStore) ListArchives(ctx context.Context, limit int) ([]types.ArchiveRecord, error) {
	q := s.db(ctx).Order("archived_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []archiveRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	out := make([]types.ArchiveRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// IncrementPersonaStats upserts the persona counter
func (s *GormStore) IncrementPersonaStats(ctx context.Context, key string, at int64) error {
	if key == "" {
		return ErrInvalidInput
	}
	err := s.db(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "persona_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"message_count": gorm.Expr("rt_persona_stats.message_count + 1"),
			"last_active":   at,
		}),
	}).Create(&personaStatRow{PersonaKey: key, MessageCount: 1, LastActive: at}).Error
	if err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}
	return nil
}

// PersonaStats returns all persona counters
func (s *GormStore) PersonaStats(ctx context.Context) (map[string]types.PersonaStats, error) {
	var rows []personaStatRow
	if err := s.db(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	out := make(map[string]types.PersonaStats, len(rows))
	for _, r := range rows {
		out[r.PersonaKey] = types.PersonaStats{MessageCount: r.MessageCount, LastActive: r.LastActive}
	}
	return out, nil
}

// SaveContextEntry upserts a context entry
func (s *GormStore) SaveContextEntry(ctx context.Context, entry *types.ContextEntry) error {
	if err := validateContextEntry(entry); err != nil {
		return err
	}
	row := contextEntryRow{
		ID:        entry.ID,
		Kind:      string(entry.Kind),
		Title:     entry.Title,
		Content:   entry.Content,
		Status:    string(entry.Status),
		CreatedAt: entry.CreatedAt,
	}
	err := s.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "title", "content", "status", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save context entry: %w", err)
	}
	return nil
}

// ListContextEntries returns the newest entries first
func (s *GormStore) ListContextEntries(ctx context.Context, limit int) ([]types.ContextEntry, error) {
	q := s.db(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []contextEntryRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list context entries: %w", err)
	}
	out := make([]types.ContextEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.ContextEntry{
			ID:        r.ID,
			Kind:      types.ContextKind(r.Kind),
			Title:     r.Title,
			Content:   r.Content,
			Status:    types.TaskStatus(r.Status),
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// Wipe resets the conversation and deletes archives and stats in one transaction
func (s *GormStore) Wipe(ctx context.Context, fresh *types.ConversationState) error {
	if fresh == nil {
		return ErrInvalidInput
	}
	doc, err := json.Marshal(fresh)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&archiveRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete archives: %w", err)
		}
		if err := all.Delete(&personaStatRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete stats: %w", err)
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"document":   string(doc),
				"version":    gorm.Expr("rt_conversations.version + 1"),
				"updated_at": fresh.CreatedAt,
			}),
		}).Create(&conversationRow{ID: conversationRowID, Document: string(doc), Version: 1, UpdatedAt: fresh.CreatedAt}).Error
		if err != nil {
			return fmt.Errorf("failed to reset conversation: %w", err)
		}
		return nil
	})
}

// Ping checks if the store is healthy
func (s *GormStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the store
func (s *GormStore) Close() error {
	return s.pool.Close()
}
