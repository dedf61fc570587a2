package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iudanet/adminsync/internal/clock"
	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/server/storage"
)

// ListEntities returns all records of type t ordered by creation time
func (s *Storage) ListEntities(ctx context.Context, t models.EntityType) ([]*models.EntityRecord, error) {
	query := `
		SELECT id, attributes, created_at, updated_at
		FROM entities
		WHERE type = ?
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]*models.EntityRecord, 0)
	for rows.Next() {
		rec, err := scanEntity(rows, t)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// GetEntity retrieves a record
func (s *Storage) GetEntity(ctx context.Context, t models.EntityType, id string) (*models.EntityRecord, error) {
	return getEntity(ctx, s.db, t, id)
}

// CreateEntity stores a new record
func (s *Storage) CreateEntity(ctx context.Context, rec *models.EntityRecord) (err error) {
	ctx, span := s.startSpan(ctx, "CreateEntity", rec.Type, rec.ID)
	defer func() { endSpan(span, err) }()

	attrs, err := encodeAttributes(rec.Attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO entities (type, id, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		string(rec.Type),
		rec.ID,
		attrs,
		rec.CreatedAt.UTC().UnixMicro(),
		rec.UpdatedAt.UTC().UnixMicro(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrEntityExists
		}
		return fmt.Errorf("failed to insert entity: %w", err)
	}

	return nil
}

// UpdateEntity merges patch into record attributes in one transaction
func (s *Storage) UpdateEntity(
	ctx context.Context,
	t models.EntityType,
	id string,
	patch map[string]any,
	updatedAt time.Time,
) (rec *models.EntityRecord, err error) {
	ctx, span := s.startSpan(ctx, "UpdateEntity", t, id)
	defer func() { endSpan(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := getEntity(ctx, tx, t, id)
	if err != nil {
		return nil, err
	}

	// updated_at строго растет даже при отставании часов процесса
	updatedAt = updatedAt.UTC().Truncate(clock.Resolution)
	if !updatedAt.After(existing.UpdatedAt) {
		updatedAt = existing.UpdatedAt.Add(clock.Resolution)
	}

	existing.Attributes = models.MergeAttributes(existing.Attributes, patch)
	existing.UpdatedAt = updatedAt

	attrs, err := encodeAttributes(existing.Attributes)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE entities
		SET attributes = ?, updated_at = ?
		WHERE type = ? AND id = ?
	`
	if _, err = tx.ExecContext(ctx, query, attrs, updatedAt.UnixMicro(), string(t), id); err != nil {
		return nil, fmt.Errorf("failed to update entity: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return existing, nil
}

// DeleteEntity removes a record
func (s *Storage) DeleteEntity(ctx context.Context, t models.EntityType, id string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteEntity", t, id)
	defer func() { endSpan(span, err) }()

	result, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE type = ? AND id = ?`, string(t), id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return storage.ErrEntityNotFound
	}

	return nil
}

// queryRower общий интерфейс *sql.DB и *sql.Tx
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getEntity(ctx context.Context, q queryRower, t models.EntityType, id string) (*models.EntityRecord, error) {
	query := `
		SELECT id, attributes, created_at, updated_at
		FROM entities
		WHERE type = ? AND id = ?
	`

	rec, err := scanEntity(q.QueryRowContext(ctx, query, string(t), id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrEntityNotFound
		}
		return nil, err
	}
	return rec, nil
}

func scanEntity(row scanner, t models.EntityType) (*models.EntityRecord, error) {
	var (
		rec                  = &models.EntityRecord{Type: t}
		attrs                string
		createdAt, updatedAt int64
	)

	if err := row.Scan(&rec.ID, &attrs, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}

	if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode attributes of %s/%s: %w", t, rec.ID, err)
	}
	if rec.Attributes == nil {
		rec.Attributes = map[string]any{}
	}
	rec.CreatedAt = time.UnixMicro(createdAt).UTC()
	rec.UpdatedAt = time.UnixMicro(updatedAt).UTC()

	return rec, nil
}

func encodeAttributes(attrs map[string]any) (string, error) {
	if attrs == nil {
		return "{}", nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to encode attributes: %w", err)
	}
	return string(data), nil
}

func (s *Storage) startSpan(ctx context.Context, op string, t models.EntityType, id string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "sqlite."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("adminsync.entity_type", string(t)),
			attribute.String("adminsync.entity_id", id),
		))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
