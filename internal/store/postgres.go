package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	apperrors "finserv-applications/internal/common/errors"
	"finserv-applications/internal/common/logger"
	"finserv-applications/internal/models"
	"finserv-applications/pkg/registry"

	"github.com/lib/pq"
)

const undefinedTable = "42P01"

// PostgresStore maps each registry collection to its own table. Business
// fields live in a JSONB payload; the amount is denormalized into a BIGINT
// column so CountByStatus can SUM it server side.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.ForComponent(log, "postgres-store"),
		now:    time.Now,
	}
}

// EnsureCollection creates the table and listing index when missing.
func (s *PostgresStore) EnsureCollection(ctx context.Context, entry registry.Entry) error {
	table := pq.QuoteIdentifier(entry.Collection)
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id               TEXT PRIMARY KEY,
			service_category TEXT NOT NULL,
			owner_id         TEXT,
			%s               TEXT,
			amount           BIGINT,
			payload          JSONB NOT NULL DEFAULT '{}'::jsonb,
			status_history   JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		)`, table, pq.QuoteIdentifier(entry.StatusField))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", entry.Collection, err)
	}

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (owner_id, created_at DESC)`,
		pq.QuoteIdentifier(entry.Collection+"_owner_created_idx"), table)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("create index on %s: %w", entry.Collection, err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, entry registry.Entry, rec *models.Application) (*models.Application, error) {
	stored, err := newRecord(entry, rec, s.now())
	if err != nil {
		return nil, err
	}
	payload, history, err := encodeDocument(stored)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, service_category, owner_id, %s, amount, payload, status_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		pq.QuoteIdentifier(entry.Collection), pq.QuoteIdentifier(entry.StatusField))

	_, err = s.db.ExecContext(ctx, query,
		stored.ID,
		string(stored.ServiceCategory),
		nullString(stored.OwnerID),
		string(stored.Status),
		nullInt64(stored.Amount),
		payload,
		history,
		stored.CreatedAt,
	)
	if err != nil {
		return nil, s.classify(entry, "insert", err)
	}

	s.logger.Debug("application inserted", map[string]interface{}{
		"collection":    entry.Collection,
		"applicationId": stored.ID,
	})
	return stored, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, entry registry.Entry, id string, filter Filter) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`,
		columns(entry), pq.QuoteIdentifier(entry.Collection))

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("application", id)
	}
	if err != nil {
		return nil, s.classify(entry, "find by id", err)
	}
	if !filter.Match(rec) {
		return nil, apperrors.NewForbiddenError("application " + id + " is outside the caller's scope")
	}
	return rec, nil
}

func (s *PostgresStore) Find(ctx context.Context, entry registry.Entry, filter Filter, opts FindOptions) iter.Seq2[*models.Application, error] {
	return func(yield func(*models.Application, error) bool) {
		if filter.Deny {
			return
		}

		var (
			clauses []string
			args    []interface{}
		)
		if !filter.AllOwners {
			args = append(args, filter.OwnerID)
			clauses = append(clauses, fmt.Sprintf("owner_id = $%d", len(args)))
		}

		query := fmt.Sprintf(`SELECT %s FROM %s`, columns(entry), pq.QuoteIdentifier(entry.Collection))
		if len(clauses) > 0 {
			query += " WHERE " + strings.Join(clauses, " AND ")
		}
		if opts.Order == CreatedAsc {
			query += " ORDER BY created_at ASC, id ASC"
		} else {
			query += " ORDER BY created_at DESC, id ASC"
		}

		// Stored statuses may be legacy spellings, so a status filter is
		// applied after normalization and paging has to follow it.
		w := window{opts: opts}
		if opts.Status == nil {
			if opts.Limit > 0 {
				args = append(args, opts.Limit)
				query += fmt.Sprintf(" LIMIT $%d", len(args))
			}
			if opts.Offset > 0 {
				args = append(args, opts.Offset)
				query += fmt.Sprintf(" OFFSET $%d", len(args))
			}
			w = window{}
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, s.classify(entry, "find", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				yield(nil, s.classify(entry, "scan", err))
				return
			}
			keep, more := w.admit(rec)
			if keep && !yield(rec, nil) {
				return
			}
			if !more {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, s.classify(entry, "iterate", err))
		}
	}
}

func (s *PostgresStore) Update(ctx context.Context, entry registry.Entry, id string, filter Filter, version time.Time, patch Patch) (*models.Application, error) {
	current, err := s.FindByID(ctx, entry, id, filter)
	if err != nil {
		return nil, err
	}
	if !current.UpdatedAt.Equal(version) {
		return nil, apperrors.NewConflictError(id, version)
	}

	next := current.Clone()
	if err := applyPatch(entry, next, patch, nextVersion(s.now(), current.UpdatedAt)); err != nil {
		return nil, err
	}
	payload, history, err := encodeDocument(next)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $2, amount = $3, payload = $4, status_history = $5, updated_at = $6
		WHERE id = $1 AND updated_at = $7`,
		pq.QuoteIdentifier(entry.Collection), pq.QuoteIdentifier(entry.StatusField))

	result, err := s.db.ExecContext(ctx, query,
		id,
		string(next.Status),
		nullInt64(next.Amount),
		payload,
		history,
		next.UpdatedAt,
		current.UpdatedAt,
	)
	if err != nil {
		return nil, s.classify(entry, "update", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, s.classify(entry, "update", err)
	}
	if affected == 0 {
		// Someone else advanced updated_at between our read and write.
		return nil, apperrors.NewConflictError(id, version)
	}
	return next, nil
}

// CountByStatus groups server side. Rows come back with raw status values and
// are normalized here. SUM(bigint) is numeric in Postgres, so the sum is read
// as text and a value beyond int64 is ErrAmountOverflow.
func (s *PostgresStore) CountByStatus(ctx context.Context, entry registry.Entry, filter Filter) ([]StatusTotal, error) {
	if filter.Deny {
		return nil, nil
	}

	statusCol := pq.QuoteIdentifier(entry.StatusField)
	query := fmt.Sprintf(`SELECT %s, COUNT(*), COALESCE(SUM(amount), 0) FROM %s`,
		statusCol, pq.QuoteIdentifier(entry.Collection))
	var args []interface{}
	if !filter.AllOwners {
		args = append(args, filter.OwnerID)
		query += " WHERE owner_id = $1"
	}
	query += " GROUP BY " + statusCol

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.classify(entry, "count", err)
	}
	defer rows.Close()

	var out []StatusTotal
	for rows.Next() {
		var (
			raw   sql.NullString
			sum   string
			total StatusTotal
		)
		if err := rows.Scan(&raw, &total.Count, &sum); err != nil {
			return nil, s.classify(entry, "count scan", err)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(sum), 10, 64)
		if errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("count %s: sum %s: %w", entry.Collection, sum, ErrAmountOverflow)
		}
		if err != nil {
			return nil, s.classify(entry, "count scan", err)
		}
		total.Sum = n
		total.Status = models.NormalizeStatus(raw.String)
		out = append(out, total)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(entry, "count", err)
	}
	return out, nil
}

// classify maps driver errors onto the shared taxonomy.
func (s *PostgresStore) classify(entry registry.Entry, op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return apperrors.NewCollectionNotFoundError(entry.Collection)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Error("postgres operation failed", map[string]interface{}{
		"collection": entry.Collection,
		"op":         op,
		"error":      err,
	})
	return fmt.Errorf("%s %s: %w", op, entry.Collection, err)
}

func columns(entry registry.Entry) string {
	return "id, service_category, owner_id, " + pq.QuoteIdentifier(entry.StatusField) +
		", amount, payload, status_history, created_at, updated_at"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// historyRow decodes history leniently; legacy entries may carry any status
// spelling.
type historyRow struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actorId"`
	Note      string    `json:"note,omitempty"`
}

func scanRecord(row rowScanner) (*models.Application, error) {
	var (
		rec      models.Application
		category string
		owner    sql.NullString
		status   sql.NullString
		amount   sql.NullInt64
		payload  []byte
		history  []byte
	)
	if err := row.Scan(&rec.ID, &category, &owner, &status, &amount, &payload, &history, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	rec.ServiceCategory = models.ServiceCategory(category)
	rec.Status = models.NormalizeStatus(status.String)
	if owner.Valid {
		rec.OwnerID = models.StringPtr(owner.String)
	}
	if amount.Valid {
		n := amount.Int64
		rec.Amount = &n
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", rec.ID, err)
		}
	}
	if len(history) > 0 {
		var entries []historyRow
		if err := json.Unmarshal(history, &entries); err != nil {
			return nil, fmt.Errorf("decode status history of %s: %w", rec.ID, err)
		}
		rec.StatusHistory = make([]models.StatusChange, 0, len(entries))
		for _, h := range entries {
			rec.StatusHistory = append(rec.StatusHistory, models.StatusChange{
				Status:    models.NormalizeStatus(h.Status),
				Timestamp: h.Timestamp.UTC(),
				ActorID:   h.ActorID,
				Note:      h.Note,
			})
		}
	}
	return &rec, nil
}

func encodeDocument(rec *models.Application) (payload []byte, history []byte, err error) {
	payload, err = json.Marshal(rec.Payload)
	if err != nil {
		return nil, nil, apperrors.NewValidationError(fmt.Sprintf("payload is not serializable: %v", err))
	}
	history, err = json.Marshal(rec.StatusHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("encode status history: %w", err)
	}
	return payload, history, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
