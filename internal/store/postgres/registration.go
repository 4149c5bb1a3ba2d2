package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/store"
)

// uniqueViolation is the PostgreSQL error code for a unique index conflict.
const uniqueViolation = "23505"

// RegistrationStore is the PostgreSQL implementation of
// store.RegistrationStore. The unique index on (participant_id, event_id) is
// the authoritative duplicate-registration guard.
type RegistrationStore struct {
	db *pgxpool.Pool
}

// NewRegistrationStore constructs a RegistrationStore.
func NewRegistrationStore(db *pgxpool.Pool) *RegistrationStore {
	return &RegistrationStore{db: db}
}

const regColumns = `id, event_id, participant_id, status, payment, ticket,
	payment_proof, order_item_id, order_item_name, order_quantity,
	order_unit_price_cents, answers, attended, attended_at, attendance_log,
	created_at, updated_at`

func (s *RegistrationStore) CreateIfAbsent(ctx context.Context, r *model.Registration) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	auditLog, err := json.Marshal(r.AttendanceLog)
	if err != nil {
		return fmt.Errorf("marshal attendance log: %w", err)
	}

	var itemID, itemName *string
	var qty *int
	var unitPrice *int64
	if r.Order != nil {
		itemID, itemName = &r.Order.ItemID, &r.Order.ItemName
		qty, unitPrice = &r.Order.Quantity, &r.Order.UnitPriceCents
	}
	var ticket *string
	if r.Ticket != "" {
		ticket = &r.Ticket
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO registrations (`+regColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		r.ID, r.EventID, r.ParticipantID, r.Status, r.Payment, ticket,
		r.PaymentProof, itemID, itemName, qty, unitPrice, answers,
		r.Attended, r.AttendedAt, auditLog, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrAlreadyRegistered
		}
		return transient("insert registration", err)
	}
	return nil
}

func (s *RegistrationStore) Get(ctx context.Context, id string) (*model.Registration, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

func (s *RegistrationStore) GetByPair(ctx context.Context, participantID, eventID string) (*model.Registration, error) {
	return s.getWhere(ctx, `participant_id = $1 AND event_id = $2`, participantID, eventID)
}

func (s *RegistrationStore) GetByTicket(ctx context.Context, ticket string) (*model.Registration, error) {
	return s.getWhere(ctx, `ticket = $1`, ticket)
}

func (s *RegistrationStore) getWhere(ctx context.Context, where string, args ...any) (*model.Registration, error) {
	row := s.db.QueryRow(ctx, `SELECT `+regColumns+` FROM registrations WHERE `+where, args...)
	r, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, transient("get registration", err)
	}
	return r, nil
}

func (s *RegistrationStore) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return s.listWhere(ctx, `event_id = $1`, eventID)
}

func (s *RegistrationStore) ListByParticipant(ctx context.Context, participantID string) ([]model.Registration, error) {
	return s.listWhere(ctx, `participant_id = $1`, participantID)
}

func (s *RegistrationStore) listWhere(ctx context.Context, where string, args ...any) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE `+where+` ORDER BY created_at ASC`,
		args...,
	)
	if err != nil {
		return nil, transient("list registrations", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, transient("scan registration", err)
		}
		regs = append(regs, *r)
	}
	return regs, rows.Err()
}

func (s *RegistrationStore) IssueTicket(ctx context.Context, id, ticket string, payment model.PaymentStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE registrations SET ticket = $2, payment = $3, updated_at = now()
		 WHERE id = $1 AND ticket IS NULL AND status = $4`,
		id, ticket, payment, model.RegistrationActive,
	)
	if err != nil {
		return transient("issue ticket", err)
	}
	if tag.RowsAffected() == 0 {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if r.Ticketed() {
			return store.ErrAlreadyTicketed
		}
		return store.ErrInvalidState
	}
	return nil
}

func (s *RegistrationStore) TransitionPayment(ctx context.Context, id string, from, to model.PaymentStatus) error {
	if !from.CanTransitionTo(to) {
		return store.ErrInvalidState
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE registrations SET payment = $3, updated_at = now()
		 WHERE id = $1 AND payment = $2`,
		id, from, to,
	)
	if err != nil {
		return transient("transition payment", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return store.ErrInvalidState
	}
	return nil
}

func (s *RegistrationStore) SetPaymentProof(ctx context.Context, id, proof string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE registrations SET payment_proof = $2, updated_at = now() WHERE id = $1`,
		id, proof,
	)
	if err != nil {
		return transient("set payment proof", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *RegistrationStore) Cancel(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE registrations SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id, model.RegistrationActive, model.RegistrationCancelled,
	)
	if err != nil {
		return transient("cancel registration", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return store.ErrInvalidState
	}
	return nil
}

func (s *RegistrationStore) MarkScanned(ctx context.Context, id string, at time.Time) (bool, time.Time, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE registrations SET attended = TRUE, attended_at = $2, updated_at = now()
		 WHERE id = $1 AND attended = FALSE`,
		id, at,
	)
	if err != nil {
		return false, time.Time{}, transient("mark scanned", err)
	}
	if tag.RowsAffected() == 1 {
		return false, at, nil
	}
	// Lost the race or already marked: report the original mark time.
	var attended bool
	var attendedAt *time.Time
	err = s.db.QueryRow(ctx,
		`SELECT attended, attended_at FROM registrations WHERE id = $1`, id,
	).Scan(&attended, &attendedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, time.Time{}, store.ErrNotFound
		}
		return false, time.Time{}, transient("read attendance", err)
	}
	return true, timeVal(attendedAt), nil
}

func (s *RegistrationStore) OverrideAttendance(ctx context.Context, id string, marked bool, entry model.AttendanceEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	var attendedAt *time.Time
	if marked {
		attendedAt = &entry.At
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE registrations
		 SET attended = $2, attended_at = $3,
		     attendance_log = attendance_log || $4::jsonb,
		     updated_at = now()
		 WHERE id = $1`,
		id, marked, attendedAt, entryJSON,
	)
	if err != nil {
		return transient("override attendance", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var (
		r                model.Registration
		ticket           *string
		itemID, itemName *string
		qty              *int
		unitPrice        *int64
		answers, audit   []byte
	)
	err := row.Scan(
		&r.ID, &r.EventID, &r.ParticipantID, &r.Status, &r.Payment, &ticket,
		&r.PaymentProof, &itemID, &itemName, &qty, &unitPrice, &answers,
		&r.Attended, &r.AttendedAt, &audit, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ticket != nil {
		r.Ticket = *ticket
	}
	if itemID != nil {
		r.Order = &model.OrderDetail{ItemID: *itemID}
		if itemName != nil {
			r.Order.ItemName = *itemName
		}
		if qty != nil {
			r.Order.Quantity = *qty
		}
		if unitPrice != nil {
			r.Order.UnitPriceCents = *unitPrice
		}
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &r.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	if len(audit) > 0 {
		if err := json.Unmarshal(audit, &r.AttendanceLog); err != nil {
			return nil, fmt.Errorf("unmarshal attendance log: %w", err)
		}
	}
	return &r, nil
}
