package repository

import (
	"context"
	"errors"

	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type slotRepository struct {
	pool *pgxpool.Pool
}

func NewSlotRepository(pool *pgxpool.Pool) SlotRepository {
	return &slotRepository{pool: pool}
}

const slotCols = `id, COALESCE(exhibitor_id, ''),
to_char(slot_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
duration_minutes, max_bookings, current_bookings, available,
modality, location, created_at, updated_at`

func scanSlot(row pgx.Row) (*domain.TimeSlot, error) {
	var s domain.TimeSlot
	err := row.Scan(
		&s.ID, &s.ExhibitorID,
		&s.Date, &s.StartTime, &s.EndTime,
		&s.DurationMinutes, &s.MaxBookings, &s.CurrentBookings, &s.Available,
		&s.Modality, &s.Location, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Normalize()
	return &s, nil
}

func (r *slotRepository) GetSlot(ctx context.Context, id string) (*domain.TimeSlot, error) {
	const q = `SELECT ` + slotCols + ` FROM time_slots WHERE id=$1 AND deleted_at IS NULL`

	s, err := scanSlot(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSlotNotFound
	}
	if err != nil {
		return nil, unavailable("get slot", err)
	}
	return s, nil
}

func (r *slotRepository) ListSlots(ctx context.Context, exhibitorID string) ([]domain.TimeSlot, error) {
	const q = `SELECT ` + slotCols + ` FROM time_slots
		WHERE exhibitor_id=$1 AND deleted_at IS NULL
		ORDER BY slot_date, start_time`

	rows, err := r.pool.Query(ctx, q, exhibitorID)
	if err != nil {
		return nil, unavailable("list slots", err)
	}
	defer rows.Close()

	slots := []domain.TimeSlot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, unavailable("scan slot", err)
		}
		slots = append(slots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list slots", err)
	}
	return slots, nil
}

func (r *slotRepository) CreateSlot(ctx context.Context, in domain.NewSlot) (*domain.TimeSlot, error) {
	const q = `INSERT INTO time_slots (
		id, exhibitor_id, slot_date, start_time, end_time, duration_minutes,
		max_bookings, current_bookings, available, modality, location
	) VALUES ($1,$2,$3::date,$4::time,$5::time,$6,$7,0,true,$8,$9)
	RETURNING ` + slotCols

	s, err := scanSlot(r.pool.QueryRow(ctx, q,
		uuid.NewString(), in.ExhibitorID,
		in.Bounds.Date, in.Bounds.StartTime, in.Bounds.EndTime, in.DurationMinutes,
		in.MaxBookings, in.Modality, in.Location,
	))
	if err != nil {
		return nil, unavailable("create slot", err)
	}
	return s, nil
}

// Reserve increments the slot and inserts the appointment in one transaction.
// The slot row is locked before any check, so concurrent callers on the last
// seat serialize and all but one see the slot full.
func (r *slotRepository) Reserve(ctx context.Context, in ReserveInput) (res *Reservation, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, unavailable("begin reserve", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if in.MaxActive >= 0 {
		if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, in.VisitorID); err != nil {
			return nil, unavailable("lock visitor", err)
		}
	}

	var owner string
	err = tx.QueryRow(ctx, `SELECT COALESCE(exhibitor_id, '') FROM time_slots
		WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, in.SlotID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.ErrSlotNotFound
		return nil, err
	}
	if err != nil {
		return nil, unavailable("lock slot", err)
	}
	if owner == "" {
		err = domain.ErrDataIntegrity
		return nil, err
	}

	const reserveQ = `UPDATE time_slots
		SET current_bookings = current_bookings + 1,
			available = (current_bookings + 1) < max_bookings,
			updated_at = now()
		WHERE id=$1 AND current_bookings < max_bookings
		RETURNING ` + slotCols

	slot, err := scanSlot(tx.QueryRow(ctx, reserveQ, in.SlotID))
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.ErrSlotFull
		return nil, err
	}
	if err != nil {
		return nil, unavailable("reserve", err)
	}

	if in.MaxActive >= 0 {
		var active int
		err = tx.QueryRow(ctx, `SELECT count(*) FROM appointments
			WHERE visitor_id=$1 AND status IN ('pending','confirmed')`, in.VisitorID).Scan(&active)
		if err != nil {
			return nil, unavailable("count active", err)
		}
		if active >= in.MaxActive {
			err = &domain.QuotaExceededError{Classification: in.Classification, Limit: in.MaxActive, Active: active}
			return nil, err
		}
	}

	const insertQ = `INSERT INTO appointments (id, time_slot_id, exhibitor_id, visitor_id, status, message)
		VALUES ($1,$2,$3,$4,'pending',$5)
		RETURNING ` + appointmentCols

	appt, err := scanAppointment(tx.QueryRow(ctx, insertQ,
		uuid.NewString(), slot.ID, slot.ExhibitorID, in.VisitorID, in.Message,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = domain.ErrDuplicateBooking
			return nil, err
		}
		return nil, unavailable("insert appointment", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, unavailable("commit reserve", err)
	}
	return &Reservation{Appointment: *appt, Slot: *slot}, nil
}

func (r *slotRepository) Release(ctx context.Context, slotID string) (*domain.TimeSlot, error) {
	const q = `UPDATE time_slots
		SET current_bookings = GREATEST(current_bookings - 1, 0),
			available = GREATEST(current_bookings - 1, 0) < max_bookings,
			updated_at = now()
		WHERE id=$1
		RETURNING ` + slotCols

	s, err := scanSlot(r.pool.QueryRow(ctx, q, slotID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSlotNotFound
	}
	if err != nil {
		return nil, unavailable("release", err)
	}
	return s, nil
}

// Reconcile recomputes current_bookings from the non-cancelled appointments.
// The slot row is locked first so the count cannot miss a reservation in flight.
func (r *slotRepository) Reconcile(ctx context.Context, slotID string) (slot *domain.TimeSlot, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, unavailable("begin reconcile", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM time_slots WHERE id=$1 FOR UPDATE`, slotID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.ErrSlotNotFound
		return nil, err
	}
	if err != nil {
		return nil, unavailable("lock slot", err)
	}

	var held int
	err = tx.QueryRow(ctx, `SELECT count(*) FROM appointments
		WHERE time_slot_id=$1 AND status <> 'cancelled'`, slotID).Scan(&held)
	if err != nil {
		return nil, unavailable("count bookings", err)
	}

	const q = `UPDATE time_slots
		SET current_bookings = $2::int, available = $2::int < max_bookings, updated_at = now()
		WHERE id=$1
		RETURNING ` + slotCols
	slot, err = scanSlot(tx.QueryRow(ctx, q, slotID, held))
	if err != nil {
		return nil, unavailable("reconcile", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, unavailable("commit reconcile", err)
	}
	return slot, nil
}

// DeleteSlot soft-deletes under the same row lock Reserve takes, so a delete
// and a reservation on one slot cannot both succeed.
func (r *slotRepository) DeleteSlot(ctx context.Context, id string) error {
	const q = `UPDATE time_slots SET deleted_at = now(), updated_at = now()
		WHERE id=$1 AND deleted_at IS NULL AND current_bookings = 0`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return unavailable("delete slot", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM time_slots WHERE id=$1 AND deleted_at IS NULL)`, id).Scan(&exists)
	if err != nil {
		return unavailable("delete slot", err)
	}
	if exists {
		return domain.ErrSlotInUse
	}
	return domain.ErrSlotNotFound
}
