package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/store"
)

// EventStore is the PostgreSQL implementation of store.EventStore.
type EventStore struct {
	db *pgxpool.Pool
}

// NewEventStore constructs an EventStore.
func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `id, organizer_id, name, description, kind, status, fee_cents,
	start_at, end_at, registration_deadline, registration_limit,
	registration_count, total_revenue_cents, eligible_segment, form_locked,
	form, created_at, updated_at`

func (s *EventStore) Create(ctx context.Context, e *model.Event) error {
	form, err := json.Marshal(e.Form)
	if err != nil {
		return fmt.Errorf("marshal form: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		e.ID, e.OrganizerID, e.Name, e.Description, e.Kind, e.Status, e.FeeCents,
		timePtr(e.StartAt), timePtr(e.EndAt), timePtr(e.RegistrationDeadline),
		e.RegistrationLimit, e.RegistrationCount, e.TotalRevenueCents,
		e.EligibleSegment, e.FormLocked, form, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return transient("insert event", err)
	}
	return s.insertItems(ctx, e.ID, e.Items)
}

func (s *EventStore) insertItems(ctx context.Context, eventID string, items []model.Item) error {
	for i, it := range items {
		_, err := s.db.Exec(ctx,
			`INSERT INTO event_items (id, event_id, name, price_cents, stock, purchase_limit, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, eventID, it.Name, it.PriceCents, it.Stock, it.PurchaseLimit, i,
		)
		if err != nil {
			return transient("insert item", err)
		}
	}
	return nil
}

func (s *EventStore) Get(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, transient("get event", err)
	}
	items, err := s.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Items = items
	return e, nil
}

func (s *EventStore) List(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, transient("list events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, transient("scan event", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("list events", err)
	}
	for i := range events {
		items, err := s.loadItems(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Items = items
	}
	return events, nil
}

func (s *EventStore) loadItems(ctx context.Context, eventID string) ([]model.Item, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, price_cents, stock, purchase_limit
		 FROM event_items WHERE event_id = $1 ORDER BY position ASC`,
		eventID,
	)
	if err != nil {
		return nil, transient("list items", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.PriceCents, &it.Stock, &it.PurchaseLimit); err != nil {
			return nil, transient("scan item", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Update persists metadata and form definition only. Counters and stock are
// deliberately absent from the column list.
func (s *EventStore) Update(ctx context.Context, e *model.Event) error {
	form, err := json.Marshal(e.Form)
	if err != nil {
		return fmt.Errorf("marshal form: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE events
		 SET name = $2, description = $3, kind = $4, fee_cents = $5,
		     start_at = $6, end_at = $7, registration_deadline = $8,
		     registration_limit = $9, eligible_segment = $10, form = $11,
		     updated_at = now()
		 WHERE id = $1`,
		e.ID, e.Name, e.Description, e.Kind, e.FeeCents,
		timePtr(e.StartAt), timePtr(e.EndAt), timePtr(e.RegistrationDeadline),
		e.RegistrationLimit, e.EligibleSegment, form,
	)
	if err != nil {
		return transient("update event", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *EventStore) ReplaceItems(ctx context.Context, eventID string, items []model.Item) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return transient("begin replace items", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM event_items WHERE event_id = $1`, eventID); err != nil {
		return transient("clear items", err)
	}
	for i, it := range items {
		_, err := tx.Exec(ctx,
			`INSERT INTO event_items (id, event_id, name, price_cents, stock, purchase_limit, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, eventID, it.Name, it.PriceCents, it.Stock, it.PurchaseLimit, i,
		)
		if err != nil {
			return transient("insert item", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return transient("commit replace items", err)
	}
	return nil
}

func (s *EventStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM events WHERE id = $1 AND status = $2`, id, model.StatusDraft)
	if err != nil {
		return transient("delete event", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return store.ErrInvalidState
	}
	return nil
}

func (s *EventStore) TransitionStatus(ctx context.Context, id string, from, to model.EventStatus) error {
	if !from.CanTransitionTo(to) {
		return store.ErrInvalidState
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE events SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return transient("transition status", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return store.ErrInvalidState
	}
	return nil
}

func (s *EventStore) DecrementStock(ctx context.Context, eventID, itemID string, qty int) (int, error) {
	var stock int
	err := s.db.QueryRow(ctx,
		`UPDATE event_items SET stock = stock - $3
		 WHERE event_id = $1 AND id = $2 AND stock >= $3
		 RETURNING stock`,
		eventID, itemID, qty,
	).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, transient("decrement stock", err)
	}
	// No row matched: either the item is gone or the stock guard failed.
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_items WHERE event_id = $1 AND id = $2)`,
		eventID, itemID,
	).Scan(&exists); err != nil {
		return 0, transient("check item", err)
	}
	if !exists {
		return 0, store.ErrNotFound
	}
	return 0, store.ErrInsufficientStock
}

func (s *EventStore) IncrementStock(ctx context.Context, eventID, itemID string, qty int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE event_items SET stock = stock + $3 WHERE event_id = $1 AND id = $2`,
		eventID, itemID, qty,
	)
	if err != nil {
		return transient("increment stock", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *EventStore) IncrementRegistrationCount(ctx context.Context, eventID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE events SET registration_count = registration_count + 1
		 WHERE id = $1 AND (registration_limit = 0 OR registration_count < registration_limit)`,
		eventID,
	)
	if err != nil {
		return transient("increment registration count", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID,
		).Scan(&exists); err != nil {
			return transient("check event", err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrLimitReached
	}
	return nil
}

func (s *EventStore) DecrementRegistrationCount(ctx context.Context, eventID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE events SET registration_count = registration_count - 1
		 WHERE id = $1 AND registration_count > 0`,
		eventID,
	)
	if err != nil {
		return transient("decrement registration count", err)
	}
	return nil
}

func (s *EventStore) AdjustRevenue(ctx context.Context, eventID string, deltaCents int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE events SET total_revenue_cents = total_revenue_cents + $2 WHERE id = $1`,
		eventID, deltaCents,
	)
	if err != nil {
		return transient("adjust revenue", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *EventStore) LockForm(ctx context.Context, eventID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE events SET form_locked = TRUE WHERE id = $1`, eventID)
	if err != nil {
		return transient("lock form", err)
	}
	return nil
}

func (s *EventStore) ListDue(ctx context.Context, now time.Time) ([]model.Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE (status = $1 AND (start_at <= $4 OR end_at <= $4))
		    OR (status IN ($2, $3) AND end_at <= $4)`,
		model.StatusPublished, model.StatusOngoing, model.StatusClosed, now,
	)
	if err != nil {
		return nil, transient("list due events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, transient("scan due event", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		e                  model.Event
		startAt, endAt, dl *time.Time
		form               []byte
	)
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Name, &e.Description, &e.Kind, &e.Status,
		&e.FeeCents, &startAt, &endAt, &dl, &e.RegistrationLimit,
		&e.RegistrationCount, &e.TotalRevenueCents, &e.EligibleSegment,
		&e.FormLocked, &form, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.StartAt = timeVal(startAt)
	e.EndAt = timeVal(endAt)
	e.RegistrationDeadline = timeVal(dl)
	if len(form) > 0 {
		if err := json.Unmarshal(form, &e.Form); err != nil {
			return nil, fmt.Errorf("unmarshal form: %w", err)
		}
	}
	return &e, nil
}
