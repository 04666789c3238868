package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tutorboard/pkg/types"
)

// CreateJob inserts a job listing owned by a student.
func (s *Store) CreateJob(ctx context.Context, job *types.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.BudgetType == "" {
		job.BudgetType = types.BudgetTypeFixed
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (id, student_id, budget, budget_type, total_hours, country, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.StudentID, job.Budget, job.BudgetType, job.TotalHours, job.Country, job.CreatedAt,
		)
		return errors.Wrap(err, "failed to insert job")
	})
}

// GetJob retrieves a job listing by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (*types.Job, error) {
	return getJob(ctx, s.db, jobID)
}

func getJob(ctx context.Context, q querier, jobID string) (*types.Job, error) {
	var job types.Job
	err := q.QueryRowContext(ctx, `
		SELECT id, student_id, budget, budget_type, total_hours, country, created_at
		FROM jobs WHERE id = ?`,
		jobID,
	).Scan(&job.ID, &job.StudentID, &job.Budget, &job.BudgetType, &job.TotalHours, &job.Country, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query job")
	}
	return &job, nil
}

// JobUnlockCount returns how many tutors have unlocked the job.
func (s *Store) JobUnlockCount(ctx context.Context, jobID string) (int, error) {
	return jobUnlockCount(ctx, s.db, jobID)
}

func jobUnlockCount(ctx context.Context, q querier, jobID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM job_unlocks WHERE job_id = ?", jobID,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count job unlocks")
	}
	return n, nil
}

// HasJobUnlock reports whether the tutor already paid for the job.
func (s *Store) HasJobUnlock(ctx context.Context, jobID, tutorID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM job_unlocks WHERE job_id = ? AND tutor_id = ?",
		jobID, tutorID,
	).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "failed to query job unlock")
	}
	return n > 0, nil
}

// UnlockJob debits the quoted points from the tutor and records the unlock.
// The contact channel from the tutor to the job's student opens as part of
// the same transaction, so a paid unlock always enables messaging. A repeat
// unlock fails with ErrAlreadyUnlocked before any charge.
func (s *Store) UnlockJob(ctx context.Context, jobID, tutorID string, points int) (*types.JobUnlock, error) {
	if points < 1 {
		return nil, errors.New("unlock price must be at least one point")
	}

	var unlock *types.JobUnlock
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := getJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.StudentID == tutorID {
			return ErrSelfUnlock
		}

		var n int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM job_unlocks WHERE job_id = ? AND tutor_id = ?",
			jobID, tutorID,
		).Scan(&n); err != nil {
			return errors.Wrap(err, "failed to query job unlock")
		}
		if n > 0 {
			return ErrAlreadyUnlocked
		}

		if err := debit(ctx, tx, tutorID, points); err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO job_unlocks (job_id, tutor_id, points_spent, unlocked_at) VALUES (?, ?, ?, ?)",
			jobID, tutorID, points, now,
		); err != nil {
			return errors.Wrap(err, "failed to insert job unlock")
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO contact_unlocks (unlocker_id, target_id, created_at)
			VALUES (?, ?, ?)`,
			tutorID, job.StudentID, now,
		); err != nil {
			return errors.Wrap(err, "failed to open contact channel")
		}

		unlock = &types.JobUnlock{JobID: jobID, TutorID: tutorID, PointsSpent: points, UnlockedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

// PricingTiers returns the rate tiers ordered by min_rate ascending.
func (s *Store) PricingTiers(ctx context.Context) ([]types.PricingTier, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT min_rate, max_rate, points FROM unlock_pricing_tiers ORDER BY min_rate ASC",
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query pricing tiers")
	}
	defer func() { _ = rows.Close() }()

	var tiers []types.PricingTier
	for rows.Next() {
		var tier types.PricingTier
		if err := rows.Scan(&tier.MinRate, &tier.MaxRate, &tier.Points); err != nil {
			return nil, errors.Wrap(err, "failed to scan tier row")
		}
		tiers = append(tiers, tier)
	}
	return tiers, errors.Wrap(rows.Err(), "error iterating tier rows")
}

// CountryGroups returns the country -> group mapping.
func (s *Store) CountryGroups(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, grp FROM country_groups")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query country groups")
	}
	defer func() { _ = rows.Close() }()

	groups := make(map[string]string)
	for rows.Next() {
		var name, grp string
		if err := rows.Scan(&name, &grp); err != nil {
			return nil, errors.Wrap(err, "failed to scan country group row")
		}
		groups[name] = grp
	}
	return groups, errors.Wrap(rows.Err(), "error iterating country group rows")
}

// CountryGroupPoints returns the group -> base points mapping.
func (s *Store) CountryGroupPoints(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT grp, points FROM country_group_points")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query country group points")
	}
	defer func() { _ = rows.Close() }()

	points := make(map[string]int)
	for rows.Next() {
		var grp string
		var pts int
		if err := rows.Scan(&grp, &pts); err != nil {
			return nil, errors.Wrap(err, "failed to scan group points row")
		}
		points[grp] = pts
	}
	return points, errors.Wrap(rows.Err(), "error iterating group points rows")
}
