package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"pathpatrol/internal/model"

	"github.com/lib/pq"
	"github.com/samber/lo"
)

// TagMatch selects how FilterByTag compares a tag with the stored tag set.
type TagMatch int

const (
	// TagMatchExact matches a whole tag element.
	TagMatchExact TagMatch = iota
	// TagMatchSubstring matches the tag text anywhere in the ", " joined tag
	// string, case-sensitively. "Urgent" also matches "NonUrgent".
	TagMatchSubstring
)

// ResolutionPolicy selects what a repeated transition into resolved does to
// resolved_at and resolution_time_hours.
type ResolutionPolicy int

const (
	// ResolveFirstWrite keeps the first recorded resolution.
	ResolveFirstWrite ResolutionPolicy = iota
	// ResolveRecompute stamps a new resolution on every call.
	ResolveRecompute
)

// ParseTagMatch maps "exact" or "substring" to a TagMatch.
func ParseTagMatch(s string) (TagMatch, error) {
	switch strings.ToLower(s) {
	case "", "exact":
		return TagMatchExact, nil
	case "substring":
		return TagMatchSubstring, nil
	}
	return TagMatchExact, fmt.Errorf("unknown tag match mode %q", s)
}

// ParseResolutionPolicy maps "first_write" or "recompute" to a ResolutionPolicy.
func ParseResolutionPolicy(s string) (ResolutionPolicy, error) {
	switch strings.ToLower(s) {
	case "", "first_write":
		return ResolveFirstWrite, nil
	case "recompute":
		return ResolveRecompute, nil
	}
	return ResolveFirstWrite, fmt.Errorf("unknown resolution policy %q", s)
}

const (
	DefaultListLimit = 100
	timelineDays     = 30
)

const complaintColumns = `id, photo_path, location, latitude, longitude, tags, description,
	created_at, status, resolved_at, resolution_time_hours, user_id, assigned_to, updated_by`

type ComplaintRepository struct {
	db               *sql.DB
	tagMatch         TagMatch
	resolutionPolicy ResolutionPolicy
	now              func() time.Time
}

type ComplaintOption func(*ComplaintRepository)

func WithTagMatch(m TagMatch) ComplaintOption {
	return func(r *ComplaintRepository) { r.tagMatch = m }
}

func WithResolutionPolicy(p ResolutionPolicy) ComplaintOption {
	return func(r *ComplaintRepository) { r.resolutionPolicy = p }
}

func NewComplaintRepository(db *sql.DB, opts ...ComplaintOption) *ComplaintRepository {
	r := &ComplaintRepository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create inserts the complaint and returns the assigned id.
func (r *ComplaintRepository) Create(ctx context.Context, c *model.Complaint) (int64, error) {
	query := `
		INSERT INTO complaints (photo_path, location, latitude, longitude, tags, description,
			status, user_id, assigned_to, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	status := c.Status
	if status == "" {
		status = model.StatusPending
	}
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}

	err := r.db.QueryRowContext(ctx, query,
		model.JoinPhotoPaths(c.PhotoPaths),
		c.Location,
		c.Latitude,
		c.Longitude,
		pq.Array(tags),
		nullString(c.Description),
		status,
		c.UserID,
		c.AssignedTo,
		c.UpdatedBy,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return 0, err
	}
	c.Status = status
	return c.ID, nil
}

// Get returns model.ErrNotFound when no row has the id.
func (r *ComplaintRepository) Get(ctx context.Context, id int64) (*model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1`

	c, err := scanComplaint(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("complaint %d: %w", id, model.ErrNotFound)
		}
		return nil, err
	}
	return c, nil
}

// List returns complaints newest first. A non-positive limit means DefaultListLimit.
func (r *ComplaintRepository) List(ctx context.Context, limit, offset int) ([]model.Complaint, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + complaintColumns + ` FROM complaints ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return r.query(ctx, query, limit, offset)
}

// Count returns the number of stored complaints.
func (r *ComplaintRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM complaints`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// All returns every complaint newest first, for export.
func (r *ComplaintRepository) All(ctx context.Context) ([]model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints ORDER BY created_at DESC`
	return r.query(ctx, query)
}

func (r *ComplaintRepository) FilterByTag(ctx context.Context, tag string) ([]model.Complaint, error) {
	var query string
	switch r.tagMatch {
	case TagMatchSubstring:
		query = `SELECT ` + complaintColumns + ` FROM complaints
			WHERE array_to_string(tags, ', ') LIKE '%' || $1 || '%'
			ORDER BY created_at DESC`
	default:
		query = `SELECT ` + complaintColumns + ` FROM complaints
			WHERE $1 = ANY(tags)
			ORDER BY created_at DESC`
	}
	return r.query(ctx, query, tag)
}

func (r *ComplaintRepository) FilterByStatus(ctx context.Context, status model.ComplaintStatus) ([]model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE status = $1 ORDER BY created_at DESC`
	return r.query(ctx, query, status)
}

// Search matches term against location or description, case-insensitively.
func (r *ComplaintRepository) Search(ctx context.Context, term string) ([]model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints
		WHERE location ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC`
	return r.query(ctx, query, term)
}

// FilterByDateRange matches created_at by calendar day, both ends inclusive.
func (r *ComplaintRepository) FilterByDateRange(ctx context.Context, start, end time.Time) ([]model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints
		WHERE created_at::date BETWEEN $1::date AND $2::date
		ORDER BY created_at DESC`
	return r.query(ctx, query, start.Format(time.DateOnly), end.Format(time.DateOnly))
}

func (r *ComplaintRepository) ListByUser(ctx context.Context, userID int64) ([]model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE user_id = $1 ORDER BY created_at DESC`
	return r.query(ctx, query, userID)
}

func (r *ComplaintRepository) ListAssignedTo(ctx context.Context, userID int64) ([]model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE assigned_to = $1 ORDER BY created_at DESC`
	return r.query(ctx, query, userID)
}

// ListMissingCoordinates returns complaints without a latitude or longitude.
func (r *ComplaintRepository) ListMissingCoordinates(ctx context.Context) ([]model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints
		WHERE latitude IS NULL OR longitude IS NULL
		ORDER BY id`
	return r.query(ctx, query)
}

// UpdateStatus changes the status. Moving into resolved also stamps
// resolved_at and resolution_time_hours in the same statement, subject to the
// resolution policy. It returns false when no row matched.
func (r *ComplaintRepository) UpdateStatus(ctx context.Context, id int64, status model.ComplaintStatus, updatedBy *int64) (bool, error) {
	return r.execAffected(ctx, r.statusQuery(status), status, updatedBy, id)
}

func (r *ComplaintRepository) Assign(ctx context.Context, id, assigneeID int64, updatedBy *int64) (bool, error) {
	query := `UPDATE complaints SET assigned_to = $1, updated_by = $2 WHERE id = $3`
	return r.execAffected(ctx, query, assigneeID, updatedBy, id)
}

func (r *ComplaintRepository) UpdateCoordinates(ctx context.Context, id int64, lat, lon float64) (bool, error) {
	query := `UPDATE complaints SET latitude = $1, longitude = $2 WHERE id = $3`
	return r.execAffected(ctx, query, lat, lon, id)
}

func (r *ComplaintRepository) Delete(ctx context.Context, id int64) (bool, error) {
	return r.execAffected(ctx, `DELETE FROM complaints WHERE id = $1`, id)
}

// BulkUpdateStatus applies UpdateStatus to every id in one transaction and
// returns the number of rows changed.
func (r *ComplaintRepository) BulkUpdateStatus(ctx context.Context, ids []int64, status model.ComplaintStatus, updatedBy *int64) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := r.statusQuery(status)
	updated := 0
	for _, id := range lo.Uniq(ids) {
		result, err := tx.ExecContext(ctx, query, status, updatedBy, id)
		if err != nil {
			return 0, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if n > 0 {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return updated, nil
}

// BulkAssign assigns every listed complaint to assigneeID.
func (r *ComplaintRepository) BulkAssign(ctx context.Context, ids []int64, assigneeID int64, updatedBy *int64) (int, error) {
	query := `UPDATE complaints SET assigned_to = $1, updated_by = $2 WHERE id = ANY($3)`
	result, err := r.db.ExecContext(ctx, query, assigneeID, updatedBy, pq.Array(lo.Uniq(ids)))
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// CountByUser returns complaint counts keyed by submitting user.
func (r *ComplaintRepository) CountByUser(ctx context.Context) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, COUNT(*) FROM complaints WHERE user_id IS NOT NULL GROUP BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var n int
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, err
		}
		counts[userID] = n
	}
	return counts, rows.Err()
}

// Statistics aggregates the whole table. Tag counts are accumulated in
// process from every non-empty tag set.
func (r *ComplaintRepository) Statistics(ctx context.Context) (*model.Statistics, error) {
	stats := &model.Statistics{
		ByStatus: make(map[model.ComplaintStatus]int),
		ByTag:    make(map[string]int),
		Timeline: []model.DayCount{},
	}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM complaints`).Scan(&stats.Total); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM complaints GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status model.ComplaintStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	err = r.db.QueryRowContext(ctx,
		`SELECT AVG(resolution_time_hours) FROM complaints WHERE resolution_time_hours IS NOT NULL`).Scan(&avg)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		stats.AvgResolutionHours = &avg.Float64
	}

	tagRows, err := r.db.QueryContext(ctx, `SELECT tags FROM complaints WHERE cardinality(tags) > 0`)
	if err != nil {
		return nil, err
	}
	var tagSets [][]string
	for tagRows.Next() {
		var tags pq.StringArray
		if err := tagRows.Scan(&tags); err != nil {
			tagRows.Close()
			return nil, err
		}
		tagSets = append(tagSets, tags)
	}
	tagRows.Close()
	if err := tagRows.Err(); err != nil {
		return nil, err
	}
	stats.ByTag = CountTags(tagSets)

	since := r.now().AddDate(0, 0, -timelineDays).Format(time.DateOnly)
	dayRows, err := r.db.QueryContext(ctx, `
		SELECT to_char(created_at::date, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM complaints
		WHERE created_at::date >= $1::date
		GROUP BY day
		ORDER BY day
	`, since)
	if err != nil {
		return nil, err
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var d model.DayCount
		if err := dayRows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		stats.Timeline = append(stats.Timeline, d)
	}

	return stats, dayRows.Err()
}

// CountTags counts trimmed, non-empty tags across tag sets.
func CountTags(tagSets [][]string) map[string]int {
	all := lo.FlatMap(tagSets, func(tags []string, _ int) []string {
		return lo.FilterMap(tags, func(t string, _ int) (string, bool) {
			t = strings.TrimSpace(t)
			return t, t != ""
		})
	})
	return lo.CountValues(all)
}

// statusQuery picks the UPDATE for a target status. Within one statement
// now() is fixed, so resolved_at and resolution_time_hours agree.
func (r *ComplaintRepository) statusQuery(status model.ComplaintStatus) string {
	switch {
	case status != model.StatusResolved:
		return `UPDATE complaints SET status = $1, updated_by = $2 WHERE id = $3`
	case r.resolutionPolicy == ResolveRecompute:
		return `
			UPDATE complaints
			SET status = $1, updated_by = $2,
				resolved_at = now(),
				resolution_time_hours = EXTRACT(EPOCH FROM (now() - created_at)) / 3600.0
			WHERE id = $3
		`
	default:
		return `
			UPDATE complaints
			SET status = $1, updated_by = $2,
				resolved_at = COALESCE(resolved_at, now()),
				resolution_time_hours = COALESCE(resolution_time_hours,
					EXTRACT(EPOCH FROM (COALESCE(resolved_at, now()) - created_at)) / 3600.0)
			WHERE id = $3
		`
	}
}

func (r *ComplaintRepository) execAffected(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ComplaintRepository) query(ctx context.Context, query string, args ...interface{}) ([]model.Complaint, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	complaints := []model.Complaint{}
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		complaints = append(complaints, *c)
	}
	return complaints, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanComplaint(s scanner) (*model.Complaint, error) {
	c := &model.Complaint{}
	var photoPath string
	var lat, lng, hours sql.NullFloat64
	var tags pq.StringArray
	var description sql.NullString
	var resolvedAt sql.NullTime
	var userID, assignedTo, updatedBy sql.NullInt64

	err := s.Scan(
		&c.ID,
		&photoPath,
		&c.Location,
		&lat,
		&lng,
		&tags,
		&description,
		&c.CreatedAt,
		&c.Status,
		&resolvedAt,
		&hours,
		&userID,
		&assignedTo,
		&updatedBy,
	)
	if err != nil {
		return nil, err
	}

	c.PhotoPaths = model.SplitPhotoPaths(photoPath)
	c.Tags = []string(tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if lat.Valid {
		c.Latitude = &lat.Float64
	}
	if lng.Valid {
		c.Longitude = &lng.Float64
	}
	if description.Valid {
		c.Description = description.String
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	if hours.Valid {
		c.ResolutionTimeHours = &hours.Float64
	}
	if userID.Valid {
		c.UserID = &userID.Int64
	}
	if assignedTo.Valid {
		c.AssignedTo = &assignedTo.Int64
	}
	if updatedBy.Valid {
		c.UpdatedBy = &updatedBy.Int64
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Matches applies the tag comparison to an in-memory tag set, with the same
// semantics as the SQL used by FilterByTag.
func (m TagMatch) Matches(tags []string, tag string) bool {
	if m == TagMatchSubstring {
		return strings.Contains(strings.Join(tags, ", "), tag)
	}
	return lo.Contains(tags, tag)
}
