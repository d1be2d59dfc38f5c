package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/trackd/internal/db"
	"github.com/openmined/trackd/internal/models"
)

var ErrNotFound = errors.New("record not found")

// dbRecord is the row layout shared by every record table
type dbRecord struct {
	ID         int64  `db:"id"`
	SyncStatus string `db:"sync_status"`
	SyncError  string `db:"sync_error"`
	Payload    []byte `db:"payload"`
	UpdatedAt  int64  `db:"updated_at"`
	Revision   int64  `db:"revision"`
}

const selectColumns = `id, sync_status, sync_error, payload, updated_at, revision`

// Repository persists one kind of record. The sync bookkeeping lives in its own
// columns; the rest of the record is stored as JSON.
type Repository[T models.Entity[T]] struct {
	db    *sqlx.DB
	kind  models.Kind
	table string
}

func newRepository[T models.Entity[T]](database *sqlx.DB) *Repository[T] {
	var zero T
	return &Repository[T]{
		db:    database,
		kind:  zero.Kind(),
		table: tableName(zero.Kind()),
	}
}

func (r *Repository[T]) Kind() models.Kind {
	return r.kind
}

// GetAll returns every record matching predicate. A nil predicate matches everything.
func (r *Repository[T]) GetAll(ctx context.Context, predicate func(T) bool) ([]T, error) {
	var rows []dbRecord
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, selectColumns, r.table)
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select %s: %w", r.kind, err)
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		entity, err := r.decode(row)
		if err != nil {
			return nil, err
		}
		if predicate == nil || predicate(entity) {
			out = append(out, entity)
		}
	}
	return out, nil
}

func (r *Repository[T]) GetByID(ctx context.Context, id int64) (T, error) {
	return r.get(ctx, r.db, id)
}

func (r *Repository[T]) Upsert(ctx context.Context, entity T) error {
	return r.upsert(ctx, r.db, entity)
}

// UpsertAll writes entities in a single transaction
func (r *Repository[T]) UpsertAll(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, entity := range entities {
			if err := r.upsert(ctx, tx, entity); err != nil {
				return err
			}
		}
		return nil
	})
}

// Merge stores server copies as in sync. Records with local changes, including
// the ones refused by the server, keep their local copy. It returns how many
// records were written.
func (r *Repository[T]) Merge(ctx context.Context, entities []T) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, sync_status, sync_error, payload, updated_at, revision)
		VALUES (?, ?, '', ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			sync_status = excluded.sync_status,
			sync_error = excluded.sync_error,
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			revision = %[1]s.revision + 1
		WHERE %[1]s.sync_status = ?
	`, r.table)

	var written int
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		written = 0
		for _, entity := range entities {
			payload, err := json.Marshal(entity)
			if err != nil {
				return fmt.Errorf("encode %s %d: %w", r.kind, entity.EntityID(), err)
			}
			res, err := tx.ExecContext(ctx, query,
				entity.EntityID(),
				string(models.SyncStatusInSync),
				payload,
				time.Now().UnixMilli(),
				string(models.SyncStatusInSync),
			)
			if err != nil {
				return fmt.Errorf("merge %s %d: %w", r.kind, entity.EntityID(), err)
			}
			if n, err := res.RowsAffected(); err == nil {
				written += int(n)
			}
		}
		return nil
	})
	return written, err
}

// CompareAndReplace swaps the stored copy of snapshot for entity, unless the
// record was written after snapshot was read. In that case the local copy is
// kept, and moved to entity's ID when the server assigned a new one. It reports
// whether entity was stored.
func (r *Repository[T]) CompareAndReplace(ctx context.Context, snapshot, entity T) (bool, error) {
	var replaced bool
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		replaced = false
		current, err := r.get(ctx, tx, snapshot.EntityID())
		if errors.Is(err, ErrNotFound) {
			// deleted locally meanwhile
			return nil
		}
		if err != nil {
			return err
		}

		if current.Sync().Revision == snapshot.Sync().Revision {
			replaced = true
			return r.replace(ctx, tx, snapshot.EntityID(), entity)
		}
		if snapshot.EntityID() != entity.EntityID() {
			return r.replace(ctx, tx, snapshot.EntityID(), current.WithID(entity.EntityID()))
		}
		return nil
	})
	return replaced, err
}

func (r *Repository[T]) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.table)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete %s %d: %w", r.kind, id, err)
	}
	return nil
}

func (r *Repository[T]) Clear(ctx context.Context) error {
	return r.clear(ctx, r.db)
}

// NextLocalID returns an unused negative ID for a record created locally
func (r *Repository[T]) NextLocalID(ctx context.Context) (int64, error) {
	var minID sql.NullInt64
	query := fmt.Sprintf(`SELECT MIN(id) FROM %s`, r.table)
	if err := r.db.GetContext(ctx, &minID, query); err != nil {
		return 0, fmt.Errorf("min id %s: %w", r.kind, err)
	}
	if !minID.Valid || minID.Int64 >= 0 {
		return -1, nil
	}
	return minID.Int64 - 1, nil
}

func (r *Repository[T]) get(ctx context.Context, q sqlx.QueryerContext, id int64) (T, error) {
	var zero T
	var row dbRecord
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, selectColumns, r.table)
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, fmt.Errorf("%s %d: %w", r.kind, id, ErrNotFound)
		}
		return zero, fmt.Errorf("get %s %d: %w", r.kind, id, err)
	}
	return r.decode(row)
}

func (r *Repository[T]) replace(ctx context.Context, exec sqlx.ExecerContext, oldID int64, entity T) error {
	if oldID != entity.EntityID() {
		query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.table)
		if _, err := exec.ExecContext(ctx, query, oldID); err != nil {
			return fmt.Errorf("delete %s %d: %w", r.kind, oldID, err)
		}
	}
	return r.upsert(ctx, exec, entity)
}

func (r *Repository[T]) upsert(ctx context.Context, exec sqlx.ExecerContext, entity T) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s %d: %w", r.kind, entity.EntityID(), err)
	}

	meta := entity.Sync()
	if meta.SyncStatus == "" {
		meta = models.Dirty()
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, sync_status, sync_error, payload, updated_at, revision)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			sync_status = excluded.sync_status,
			sync_error = excluded.sync_error,
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			revision = %[1]s.revision + 1
	`, r.table)

	_, err = exec.ExecContext(ctx, query,
		entity.EntityID(),
		string(meta.SyncStatus),
		meta.LastSyncErrorMessage,
		payload,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s %d: %w", r.kind, entity.EntityID(), err)
	}
	return nil
}

func (r *Repository[T]) clear(ctx context.Context, exec sqlx.ExecerContext) error {
	if _, err := exec.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, r.table)); err != nil {
		return fmt.Errorf("clear %s: %w", r.kind, err)
	}
	return nil
}

func (r *Repository[T]) decode(row dbRecord) (T, error) {
	var entity T
	if err := json.Unmarshal(row.Payload, &entity); err != nil {
		return entity, fmt.Errorf("decode %s %d: %w", r.kind, row.ID, err)
	}
	return entity.
		WithID(row.ID).
		WithSync(models.SyncMeta{
			SyncStatus:           models.SyncStatus(row.SyncStatus),
			LastSyncErrorMessage: row.SyncError,
			Revision:             row.Revision,
		}), nil
}
