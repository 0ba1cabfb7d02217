// Package availability consumes the working-hours data owned by the staffing
// system. The scheduling core only needs the IsBookable capability; how the
// answer is computed (working windows minus breaks minus days off) stays
// behind this interface.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Provider interface {
	IsBookable(ctx context.Context, doctorID uuid.UUID, at time.Time) (bool, error)
}

// PgProvider reads per-weekday working windows and date-ranged days off.
type PgProvider struct {
	pool *pgxpool.Pool
}

func NewPgProvider(pool *pgxpool.Pool) *PgProvider {
	return &PgProvider{pool: pool}
}

func (p *PgProvider) IsBookable(ctx context.Context, doctorID uuid.UUID, at time.Time) (bool, error) {
	// Day off wins over any working window.
	var dayOff bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_days_off
			WHERE doctor_id = $1
			  AND $2::date BETWEEN starts_on AND ends_on
		)
	`, doctorID, at).Scan(&dayOff)
	if err != nil {
		return false, fmt.Errorf("check day off: %w", err)
	}
	if dayOff {
		return false, nil
	}

	var workStart, workEnd, breakStart, breakEnd *time.Time
	err = p.pool.QueryRow(ctx, `
		SELECT work_start, work_end, break_start, break_end
		FROM doctor_availability
		WHERE doctor_id = $1
		  AND weekday = $2
	`, doctorID, int(at.Weekday())).Scan(&workStart, &workEnd, &breakStart, &breakEnd)
	if err != nil {
		if err == pgx.ErrNoRows {
			// No window defined for this weekday means not working.
			return false, nil
		}
		return false, fmt.Errorf("load working window: %w", err)
	}

	clock := minutesIntoDay(at)
	if workStart == nil || workEnd == nil {
		return false, nil
	}
	if clock < minutesIntoDay(*workStart) || clock >= minutesIntoDay(*workEnd) {
		return false, nil
	}
	if breakStart != nil && breakEnd != nil &&
		clock >= minutesIntoDay(*breakStart) && clock < minutesIntoDay(*breakEnd) {
		return false, nil
	}

	return true, nil
}

func minutesIntoDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
