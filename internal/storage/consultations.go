package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"legaladvisor/internal/logger"
	"legaladvisor/internal/models"
	"legaladvisor/internal/redis"
)

const (
	historyCachePrefix = "consultations:user:"
	historyCacheTTL    = 10 * time.Minute
	defaultListLimit   = 50
)

// ConsultationStore persists consultation records. When a redis client is
// available the per-user history listing is cached and invalidated on writes.
type ConsultationStore struct {
	db    *sql.DB
	cache *redis.Client
	log   *logger.Logger
}

func NewConsultationStore(db *sql.DB, cache *redis.Client, log *logger.Logger) *ConsultationStore {
	return &ConsultationStore{db: db, cache: cache, log: logger.OrNop(log).Named("consultations")}
}

// Insert writes a new record and returns it with its generated id.
func (s *ConsultationStore) Insert(ctx context.Context, rec *models.Consultation) (*models.Consultation, error) {
	if rec == nil {
		return nil, errors.New("consultation is required")
	}
	if !rec.Type.Valid() {
		return nil, fmt.Errorf("invalid consultation type %q", rec.Type)
	}
	saved := *rec
	if saved.ID == "" {
		saved.ID = uuid.Must(uuid.NewV7()).String()
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now().UTC()
	}
	if saved.UploadedFiles == nil {
		saved.UploadedFiles = []string{}
	}
	files, err := json.Marshal(saved.UploadedFiles)
	if err != nil {
		return nil, fmt.Errorf("encode uploaded files: %w", err)
	}
	var owner sql.NullInt64
	if saved.UserID != nil {
		owner = sql.NullInt64{Int64: *saved.UserID, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO consultations (id, user_id, type, query_text, ai_response, confidence_score, uploaded_files, feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		saved.ID, owner, string(saved.Type), saved.QueryText, saved.AIResponse,
		saved.ConfidenceScore, string(files), saved.Feedback, saved.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create consultation: %w", err)
	}
	if saved.UserID != nil {
		s.invalidate(ctx, *saved.UserID)
	}
	return &saved, nil
}

// Update applies patch to the record with the given id. Only non-nil patch
// fields are written.
func (s *ConsultationStore) Update(ctx context.Context, id string, patch models.ConsultationPatch) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("consultation id is required")
	}
	if patch.Empty() {
		return errors.New("empty consultation patch")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE consultations SET feedback = ? WHERE id = ?`, *patch.Feedback, id)
	if err != nil {
		return fmt.Errorf("update consultation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 && !s.cache.Available() {
		return nil
	}
	// mysql reports changed rows, so writing the same rating again affects none
	var owner sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT user_id FROM consultations WHERE id = ?`, id).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("load consultation owner: %w", err)
	}
	if owner.Valid {
		s.invalidate(ctx, owner.Int64)
	}
	return nil
}

// Get returns one record.
func (s *ConsultationStore) Get(ctx context.Context, id string) (*models.Consultation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, type, query_text, ai_response, confidence_score, uploaded_files, feedback, created_at
		 FROM consultations WHERE id = ?`, id)
	rec, err := scanConsultation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get consultation: %w", err)
	}
	return rec, nil
}

// ListByUser returns the newest records owned by userID.
func (s *ConsultationStore) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Consultation, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	key := fmt.Sprintf("%s%d:%d", historyCachePrefix, userID, limit)
	if s.cache.Available() {
		var cached []*models.Consultation
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.Warn("read consultation cache", zap.Error(err))
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, query_text, ai_response, confidence_score, uploaded_files, feedback, created_at
		 FROM consultations WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	defer rows.Close()

	list := make([]*models.Consultation, 0)
	for rows.Next() {
		rec, err := scanConsultation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consultation: %w", err)
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consultations: %w", err)
	}

	if s.cache.Available() {
		if err := s.cache.SetJSON(ctx, key, list, historyCacheTTL); err != nil {
			s.log.Warn("write consultation cache", zap.Error(err))
		}
	}
	return list, nil
}

func (s *ConsultationStore) invalidate(ctx context.Context, userID int64) {
	if !s.cache.Available() {
		return
	}
	pattern := fmt.Sprintf("%s%d:*", historyCachePrefix, userID)
	var keys []string
	iter := s.cache.Raw().Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.log.Warn("scan consultation cache keys", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warn("invalidate consultation cache", zap.Int64("user_id", userID), zap.Error(err))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsultation(row rowScanner) (*models.Consultation, error) {
	var (
		rec   models.Consultation
		owner sql.NullInt64
		kind  string
		files string
	)
	if err := row.Scan(&rec.ID, &owner, &kind, &rec.QueryText, &rec.AIResponse,
		&rec.ConfidenceScore, &files, &rec.Feedback, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if owner.Valid {
		id := owner.Int64
		rec.UserID = &id
	}
	rec.Type = models.ConsultationType(kind)
	rec.UploadedFiles = []string{}
	if files != "" {
		if err := json.Unmarshal([]byte(files), &rec.UploadedFiles); err != nil {
			return nil, fmt.Errorf("decode uploaded files: %w", err)
		}
	}
	return &rec, nil
}
