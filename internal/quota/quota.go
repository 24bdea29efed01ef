package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrExceeded is returned when a client has used its daily job allowance.
var ErrExceeded = errors.New("daily job quota exceeded")

// Service enforces the per-client daily admission quota. The counter lives
// in PostgreSQL keyed by (client_id, calendar day); the day boundary uses a
// fixed reference timezone so the reset time does not depend on where a
// request lands.
type Service struct {
	db       *sql.DB
	limit    int
	location *time.Location
	logger   *zap.Logger
}

// NewService creates a quota service. tz must be a valid IANA timezone name.
func NewService(db *sql.DB, limit int, tz string, logger *zap.Logger) (*Service, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid quota timezone %q: %w", tz, err)
	}
	return &Service{db: db, limit: limit, location: loc, logger: logger}, nil
}

// Day returns the quota day key for a given instant.
func (s *Service) Day(at time.Time) string {
	return at.In(s.location).Format("2006-01-02")
}

// Reserve atomically consumes one unit of the client's daily quota. The
// compare-and-increment happens in a single statement so two concurrent
// requests can never both take the last slot.
func (s *Service) Reserve(ctx context.Context, clientID string) error {
	day := s.Day(time.Now())

	var used int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quota_usage (client_id, day, used)
		VALUES ($1, $2, 1)
		ON CONFLICT (client_id, day)
		DO UPDATE SET used = quota_usage.used + 1
		WHERE quota_usage.used < $3
		RETURNING used`,
		clientID, day, s.limit,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Info("job rejected by daily quota",
			zap.String("client_id", clientID),
			zap.String("day", day),
			zap.Int("limit", s.limit))
		return ErrExceeded
	}
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}

	s.logger.Debug("quota reserved",
		zap.String("client_id", clientID),
		zap.String("day", day),
		zap.Int("used", used))
	return nil
}

// Usage returns how many jobs the client has started today.
func (s *Service) Usage(ctx context.Context, clientID string) (int, error) {
	day := s.Day(time.Now())
	var used int
	err := s.db.QueryRowContext(ctx,
		`SELECT used FROM quota_usage WHERE client_id = $1 AND day = $2`,
		clientID, day,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota usage: %w", err)
	}
	return used, nil
}
