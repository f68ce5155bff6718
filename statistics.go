package lazarus

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DashboardStats is the admin overview
type DashboardStats struct {
	Citizens          int            `json:"citizens"`
	Entities          int            `json:"entities"`
	Admins            int            `json:"admins"`
	Incidents         int            `json:"incidents"`
	ArchivedIncidents int            `json:"archived_incidents"`
	ByStatus          map[string]int `json:"by_status"`
	BySeverity        map[string]int `json:"by_severity"`
	ByType            map[string]int `json:"by_type"`
}

// StatisticsService aggregates counts for the dashboard
type StatisticsService struct {
	repo RepositoryManager
	now  func() time.Time
}

func NewStatisticsService(repo RepositoryManager) *StatisticsService {
	return &StatisticsService{repo: repo, now: time.Now}
}

// WithClock injects a custom clock (useful for tests).
func (s *StatisticsService) WithClock(clock func() time.Time) *StatisticsService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Dashboard is restricted to admins and entities
func (s *StatisticsService) Dashboard(ctx context.Context, actor *Identity) (*DashboardStats, error) {
	if err := staffOnly(actor, "dashboard"); err != nil {
		return nil, err
	}

	stats := &DashboardStats{}

	counts := []struct {
		role RoleTag
		dst  *int
	}{
		{RoleCitizen, &stats.Citizens},
		{RoleEntity, &stats.Entities},
		{RoleAdmin, &stats.Admins},
	}
	for _, c := range counts {
		n, err := s.repo.Identities().Count(ctx, c.role)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count identities").
				WithMetadata(map[string]any{"role": c.role})
		}
		*c.dst = n
	}

	var err error
	if stats.Incidents, err = s.repo.Incidents().CountTotal(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count incidents")
	}
	if stats.ArchivedIncidents, err = s.repo.Incidents().CountArchived(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count archived incidents")
	}

	if stats.ByStatus, err = s.group(ctx, "status"); err != nil {
		return nil, err
	}
	if stats.BySeverity, err = s.group(ctx, "severity"); err != nil {
		return nil, err
	}
	if stats.ByType, err = s.group(ctx, "type"); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *StatisticsService) group(ctx context.Context, column string) (map[string]int, error) {
	buckets, err := s.repo.Incidents().CountBy(ctx, column)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to group incidents").
			WithMetadata(map[string]any{"column": column})
	}
	out := make(map[string]int, len(buckets))
	for _, b := range buckets {
		out[b.Key] = b.Count
	}
	return out, nil
}

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
	DefaultTrendDays   = 30
	MaxTrendDays       = 365
)

// TrendPoint is the number of incidents created on one UTC day
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// UserActivity summarizes one identity. Only citizens report incidents, so
// other roles always have zero incident counts.
type UserActivity struct {
	User           IdentityRef        `json:"user"`
	TotalIncidents int                `json:"total_incidents"`
	ByStatus       map[string]int     `json:"by_status"`
	Notifications  NotificationCounts `json:"notifications"`
}

func staffOnly(actor *Identity, operation string) error {
	if actor == nil || actor.Role == RoleCitizen {
		return withMeta(ErrForbidden, map[string]any{"operation": operation})
	}
	return nil
}

// Recent returns the newest incidents, archived ones included
func (s *StatisticsService) Recent(ctx context.Context, actor *Identity, limit int) ([]*Incident, error) {
	if err := staffOnly(actor, "recent_incidents"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	return s.repo.Incidents().List(ctx, IncidentFilter{IncludeArchived: true, Limit: limit})
}

// Trends counts incidents per day over the last days, oldest day first.
// Days without incidents are omitted.
func (s *StatisticsService) Trends(ctx context.Context, actor *Identity, days int) ([]TrendPoint, error) {
	if err := staffOnly(actor, "incident_trends"); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultTrendDays
	}
	if days > MaxTrendDays {
		days = MaxTrendDays
	}

	since := s.now().UTC().AddDate(0, 0, -days)
	buckets, err := s.repo.Incidents().DailyCounts(ctx, since)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compute incident trends").
			WithMetadata(map[string]any{"days": days})
	}

	out := make([]TrendPoint, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, TrendPoint{Date: b.Key, Count: b.Count})
	}
	return out, nil
}

// Locations returns a marker for every unarchived incident
func (s *StatisticsService) Locations(ctx context.Context, actor *Identity) ([]IncidentPoint, error) {
	if err := staffOnly(actor, "incident_locations"); err != nil {
		return nil, err
	}
	points, err := s.repo.Incidents().Points(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load incident locations")
	}
	return points, nil
}

// UsersByType counts identities per role, admins only
func (s *StatisticsService) UsersByType(ctx context.Context, actor *Identity) (map[RoleTag]int, error) {
	if actor == nil || actor.Role != RoleAdmin {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "users_by_type"})
	}

	out := map[RoleTag]int{}
	for _, role := range []RoleTag{RoleCitizen, RoleEntity, RoleAdmin} {
		n, err := s.repo.Identities().Count(ctx, role)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count identities").
				WithMetadata(map[string]any{"role": role})
		}
		out[role] = n
	}
	return out, nil
}

// UserActivity returns the incident and inbox counts of target. A citizen
// may only look at their own activity.
func (s *StatisticsService) UserActivity(ctx context.Context, actor *Identity, target IdentityRef) (*UserActivity, error) {
	if actor == nil {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "user_activity"})
	}
	if actor.Role == RoleCitizen && actor.Ref() != target {
		return nil, withMeta(ErrForbidden, map[string]any{
			"operation": "user_activity",
			"reason":    "citizens may only view their own activity",
		})
	}

	if _, err := s.repo.Identities().FindByID(ctx, target.Role, target.ID); err != nil {
		return nil, err
	}

	activity := &UserActivity{User: target, ByStatus: map[string]int{}}

	if target.Role == RoleCitizen {
		buckets, err := s.repo.Incidents().CountByReporter(ctx, target.ID)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count user incidents").
				WithMetadata(map[string]any{"user_id": target.ID.String()})
		}
		for _, b := range buckets {
			activity.ByStatus[b.Key] = b.Count
			activity.TotalIncidents += b.Count
		}
	}

	counts, err := s.repo.Notifications().CountFor(ctx, target)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count user notifications").
			WithMetadata(map[string]any{"user_id": target.ID.String()})
	}
	activity.Notifications = counts

	return activity, nil
}
