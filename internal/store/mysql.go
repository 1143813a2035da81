package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/enfinyte/umem/internal/core"
	"github.com/enfinyte/umem/pkg/logger"
)

// memoryRecord is the relational row for a memory. Scalar columns mirror the
// tenant context and lifecycle for indexed filtering; the payload column
// carries the full record including its vector. Timestamps are set by the
// domain, never by the ORM.
type memoryRecord struct {
	ID        string         `gorm:"primaryKey;size:64"`
	OwnerID   string         `gorm:"size:256;index:idx_tenant"`
	AgentID   string         `gorm:"size:256;index:idx_tenant"`
	Lifecycle string         `gorm:"size:32;index"`
	Kind      string         `gorm:"size:32"`
	CreatedAt time.Time      `gorm:"autoCreateTime:false;index"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:false"`
	Payload   datatypes.JSON `gorm:"type:json"`
}

func (memoryRecord) TableName() string { return "memories" }

// MySQLStore persists memories in MySQL. MySQL has no portable vector index,
// so similarity search loads the tenant's candidate rows and scores them in
// process; tenant filtering and lifecycle filtering stay in SQL.
type MySQLStore struct {
	db         *gorm.DB
	dimensions int
	log        *logger.Logger
}

// NewMySQLStore creates a store over an open database handle.
func NewMySQLStore(db *gorm.DB, dimensions int, log *logger.Logger) *MySQLStore {
	return &MySQLStore{db: db, dimensions: dimensions, log: log}
}

// AutoMigrate creates or updates the memories table.
func (s *MySQLStore) AutoMigrate() error {
	return s.db.AutoMigrate(&memoryRecord{})
}

func (s *MySQLStore) toRecord(m *core.Memory) (*memoryRecord, error) {
	payload, err := encodePayload(m)
	if err != nil {
		return nil, err
	}
	return &memoryRecord{
		ID:        m.ID,
		OwnerID:   m.Context.OwnerID,
		AgentID:   m.Context.AgentID,
		Lifecycle: string(m.Lifecycle),
		Kind:      string(m.Kind),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Payload:   datatypes.JSON(payload),
	}, nil
}

// Insert persists a memory, replacing any existing record with the same id.
func (s *MySQLStore) Insert(ctx context.Context, m *core.Memory) error {
	if len(m.Embedding) != s.dimensions {
		return &DimensionMismatchError{Want: s.dimensions, Got: len(m.Embedding)}
	}
	record, err := s.toRecord(m)
	if err != nil {
		return &VectorStoreError{Op: "insert", Err: err}
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(record).Error
	if err != nil {
		return &VectorStoreError{Op: "insert", Err: err}
	}
	return nil
}

// Fetch returns the memory with the given id if it is visible to tctx.
func (s *MySQLStore) Fetch(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error) {
	m, err := s.fetch(ctx, tctx, id)
	if err != nil {
		return nil, err
	}
	if m.Lifecycle.IsDeleted() {
		return nil, ErrNotFound
	}
	return m, nil
}

// FetchAny returns the memory with the given id regardless of lifecycle state.
func (s *MySQLStore) FetchAny(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error) {
	return s.fetch(ctx, tctx, id)
}

func (s *MySQLStore) fetch(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error) {
	var record memoryRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ? AND agent_id = ?", id, tctx.OwnerID, tctx.AgentID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &VectorStoreError{Op: "fetch", Err: err}
	}

	m, err := decodePayload(record.Payload)
	if err != nil {
		return nil, &VectorStoreError{Op: "fetch", Err: err}
	}
	return m, nil
}

// Search ranks the tenant's memories by cosine similarity to q.Vector.
func (s *MySQLStore) Search(ctx context.Context, q *core.Query) ([]ScoredMemory, error) {
	if len(q.Vector) != s.dimensions {
		return nil, &DimensionMismatchError{Want: s.dimensions, Got: len(q.Vector)}
	}

	candidates, err := s.loadCandidates(ctx, q, "search")
	if err != nil {
		return nil, err
	}

	var hits []ScoredMemory
	for _, m := range candidates {
		hits = append(hits, ScoredMemory{
			Memory: m,
			Score:  cosineSimilarity(q.Vector, m.Embedding),
		})
	}
	return rankScored(hits, q.Limit), nil
}

// List returns the tenant's memories matching the query filters, newest first.
func (s *MySQLStore) List(ctx context.Context, q *core.Query) ([]*core.Memory, error) {
	candidates, err := s.loadCandidates(ctx, q, "list")
	if err != nil {
		return nil, err
	}
	return sortNewestFirst(candidates, q.Limit), nil
}

// loadCandidates pulls the tenant's visible rows and applies the full query
// predicate to each decoded record.
func (s *MySQLStore) loadCandidates(ctx context.Context, q *core.Query, op string) ([]*core.Memory, error) {
	tx := s.db.WithContext(ctx).
		Where("owner_id = ? AND agent_id = ?", q.Context.OwnerID, q.Context.AgentID)
	if q.IncludeArchived {
		tx = tx.Where("lifecycle <> ?", string(core.StateDeleted))
	} else {
		tx = tx.Where("lifecycle = ?", string(core.StateActive))
	}

	var records []memoryRecord
	if err := tx.Find(&records).Error; err != nil {
		return nil, &VectorStoreError{Op: op, Err: err}
	}

	var memories []*core.Memory
	for _, record := range records {
		m, err := decodePayload(record.Payload)
		if err != nil {
			s.log.WithError(err).WithField("id", record.ID).Warn("skipping undecodable record")
			continue
		}
		if !q.Matches(m) {
			continue
		}
		memories = append(memories, m)
	}
	return memories, nil
}

// Delete removes the record permanently. Soft-deleted records can still be
// purged; absent or foreign ids yield ErrNotFound.
func (s *MySQLStore) Delete(ctx context.Context, tctx core.TenantContext, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ? AND agent_id = ?", id, tctx.OwnerID, tctx.AgentID).
		Delete(&memoryRecord{})
	if result.Error != nil {
		return &VectorStoreError{Op: "delete", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
