package repository

import (
	"context"
	"errors"

	"github.com/diagnosis/expo-appointments/services/appointments/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type appointmentRepository struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepository(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepository{pool: pool}
}

const appointmentCols = `id, time_slot_id, exhibitor_id, visitor_id, status,
COALESCE(message, ''), COALESCE(meeting_link, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var a domain.Appointment
	err := row.Scan(
		&a.ID, &a.TimeSlotID, &a.ExhibitorID, &a.VisitorID, &a.Status,
		&a.Message, &a.MeetingLink, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepository) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	const q = `SELECT ` + appointmentCols + ` FROM appointments WHERE id=$1`

	a, err := scanAppointment(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, unavailable("get appointment", err)
	}
	return a, nil
}

func (r *appointmentRepository) FindNonCancelled(ctx context.Context, visitorID, slotID string) (*domain.Appointment, error) {
	const q = `SELECT ` + appointmentCols + ` FROM appointments
		WHERE visitor_id=$1 AND time_slot_id=$2 AND status <> 'cancelled'
		LIMIT 1`

	a, err := scanAppointment(r.pool.QueryRow(ctx, q, visitorID, slotID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, unavailable("find appointment", err)
	}
	return a, nil
}

func (r *appointmentRepository) CountActive(ctx context.Context, visitorID string) (int, error) {
	const q = `SELECT count(*) FROM appointments
		WHERE visitor_id=$1 AND status IN ('pending','confirmed')`

	var n int
	if err := r.pool.QueryRow(ctx, q, visitorID).Scan(&n); err != nil {
		return 0, unavailable("count active", err)
	}
	return n, nil
}

func (r *appointmentRepository) ListByVisitor(ctx context.Context, visitorID string, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	return r.list(ctx, "visitor_id", visitorID, status)
}

func (r *appointmentRepository) ListByExhibitor(ctx context.Context, exhibitorID string, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	return r.list(ctx, "exhibitor_id", exhibitorID, status)
}

// column is one of two fixed identifiers, never caller input.
func (r *appointmentRepository) list(ctx context.Context, column, id string, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	q := `SELECT ` + appointmentCols + ` FROM appointments WHERE ` + column + `=$1`
	args := []any{id}
	if status != nil {
		q += ` AND status=$2`
		args = append(args, string(*status))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable("list appointments", err)
	}
	defer rows.Close()

	out := []domain.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, unavailable("scan appointment", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list appointments", err)
	}
	return out, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*domain.Appointment, error) {
	const q = `UPDATE appointments
		SET status=$3, meeting_link=COALESCE($4, meeting_link), updated_at=now()
		WHERE id=$1 AND status=$2
		RETURNING ` + appointmentCols

	a, err := scanAppointment(r.pool.QueryRow(ctx, q, in.ID, string(in.From), string(in.To), in.MeetingLink))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if qerr := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE id=$1)`, in.ID).Scan(&exists); qerr != nil {
			return nil, unavailable("update status", qerr)
		}
		if exists {
			return nil, domain.ErrStatusConflict
		}
		return nil, domain.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, unavailable("update status", err)
	}
	return a, nil
}
