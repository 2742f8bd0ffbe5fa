package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishk599/feedsync/internal/filter"
	"github.com/amishk599/feedsync/internal/model"
)

// NewPostgresPool connects to databaseURL and verifies connectivity.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

// PostgresSource reads the feed straight from the job_feed table. It
// implements model.Fetcher and model.StatsProvider.
type PostgresSource struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool, now: time.Now}
}

const feedColumns = `id, title, company, description, location, url,
	ai_match_score, is_saved, is_applied, has_contact, posted_at, source`

func (s *PostgresSource) FetchJobs(ctx context.Context, params model.FetchParams) (model.FetchResult, error) {
	query, args, err := buildFeedQuery(params, s.now())
	if err != nil {
		return model.FetchResult{}, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return model.FetchResult{}, fmt.Errorf("query job_feed: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobRecord
	for rows.Next() {
		var j model.JobRecord
		var location, url, source *string
		if err := rows.Scan(
			&j.ID, &j.Title, &j.Company, &j.Description, &location, &url,
			&j.AIMatchScore, &j.IsSaved, &j.IsApplied, &j.HasContact, &j.PostedAt, &source,
		); err != nil {
			return model.FetchResult{}, fmt.Errorf("scan: %w", err)
		}
		j.Location = deref(location)
		j.URL = deref(url)
		j.Source = deref(source)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return model.FetchResult{}, fmt.Errorf("iterate job_feed: %w", err)
	}

	stats, err := s.GetJobStats(ctx)
	if err != nil {
		return model.FetchResult{}, err
	}
	return model.FetchResult{Jobs: jobs, Stats: stats}, nil
}

func (s *PostgresSource) GetJobStats(ctx context.Context) (model.JobStats, error) {
	var stats model.JobStats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE has_contact),
		        count(*) FILTER (WHERE ai_match_score >= $1),
		        max(created_at)
		 FROM job_feed`,
		filter.ForYouThreshold,
	).Scan(&stats.Total, &stats.WithContact, &stats.ForYou, &stats.LastScrapedAt)
	if err != nil {
		return model.JobStats{}, fmt.Errorf("query job_feed stats: %w", err)
	}
	return stats, nil
}

// buildFeedQuery turns params into a parameterized SELECT ordered oldest
// first, so appends keep the feed's arrival order.
func buildFeedQuery(params model.FetchParams, now time.Time) (string, []any, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if params.Search != "" {
		p := arg(containsPattern(params.Search))
		where = append(where, fmt.Sprintf(
			`(title ILIKE %[1]s ESCAPE '\' OR company ILIKE %[1]s ESCAPE '\' OR description ILIKE %[1]s ESCAPE '\')`, p))
	}
	if params.Location != "" {
		where = append(where, "location ILIKE "+arg(containsPattern(params.Location))+` ESCAPE '\'`)
	}
	if params.ContactRequired {
		where = append(where, "has_contact")
	}
	if params.DateFilter != "" {
		window, err := ParseDateFilter(params.DateFilter)
		if err != nil {
			return "", nil, err
		}
		where = append(where, "posted_at >= "+arg(now.Add(-window)))
	}

	var b strings.Builder
	b.WriteString("SELECT " + feedColumns + " FROM job_feed")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at, id")
	if params.Limit > 0 {
		b.WriteString(" LIMIT " + arg(params.Limit))
	}
	return b.String(), args, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s literally as a substring.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// ParseDateFilter accepts a day count like "7d" or any time.ParseDuration
// value like "24h".
func ParseDateFilter(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid date filter %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid date filter %q", s)
	}
	return d, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
