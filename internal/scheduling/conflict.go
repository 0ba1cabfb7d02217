package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConflictChecker answers whether a candidate time collides with an active
// appointment for the same doctor. Two active appointments collide when they
// are strictly less than the window apart, compared at full timestamp
// precision: with a 30 minute window, bookings 29 minutes apart conflict and
// bookings 31 minutes apart do not.
type ConflictChecker struct {
	repo Repository
}

func NewConflictChecker(repo Repository) *ConflictChecker {
	return &ConflictChecker{repo: repo}
}

// HasConflict reports whether another active appointment for the doctor falls
// inside (candidate-window, candidate+window). exclude lets a reschedule
// ignore the appointment being replaced.
func (c *ConflictChecker) HasConflict(ctx context.Context, doctorID uuid.UUID, candidate time.Time, window time.Duration, exclude *uuid.UUID) (bool, error) {
	from := candidate.Add(-window)
	to := candidate.Add(window)

	count, err := c.repo.CountActiveInWindow(ctx, doctorID, from, to, exclude)
	if err != nil {
		return false, fmt.Errorf("conflict check for doctor %s: %w", doctorID, err)
	}

	return count > 0, nil
}
