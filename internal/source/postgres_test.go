package source

import (
	"strings"
	"testing"
	"time"

	"github.com/amishk599/feedsync/internal/model"
)

func TestBuildFeedQuery_NoParams(t *testing.T) {
	q, args, err := buildFeedQuery(model.FetchParams{}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(q, "WHERE") || strings.Contains(q, "LIMIT") {
		t.Errorf("unexpected clauses in %q", q)
	}
	if !strings.HasSuffix(q, "ORDER BY created_at, id") {
		t.Errorf("query not ordered by arrival: %q", q)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
}

func TestBuildFeedQuery_AllParams(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	q, args, err := buildFeedQuery(model.FetchParams{
		Search:          "welder",
		Location:        "Houston",
		DateFilter:      "7d",
		ContactRequired: true,
		Limit:           25,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, frag := range []string{
		`(title ILIKE $1 ESCAPE '\' OR company ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\')`,
		`location ILIKE $2 ESCAPE '\'`,
		"has_contact",
		"posted_at >= $3",
		"LIMIT $4",
	} {
		if !strings.Contains(q, frag) {
			t.Errorf("query missing %q:\n%s", frag, q)
		}
	}

	if len(args) != 4 {
		t.Fatalf("got %d args, want 4", len(args))
	}
	if args[0] != "%welder%" || args[1] != "%Houston%" {
		t.Errorf("unexpected pattern args: %v", args[:2])
	}
	if since, ok := args[2].(time.Time); !ok || !since.Equal(now.Add(-7*24*time.Hour)) {
		t.Errorf("since arg = %v", args[2])
	}
	if args[3] != 25 {
		t.Errorf("limit arg = %v", args[3])
	}
}

func TestContainsPattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"welder", "%welder%"},
		{"100%", `%100\%%`},
		{"c_sharp", `%c\_sharp%`},
		{`a\b`, `%a\\b%`},
	}
	for _, tt := range tests {
		if got := containsPattern(tt.in); got != tt.want {
			t.Errorf("containsPattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildFeedQuery_BadDateFilter(t *testing.T) {
	if _, _, err := buildFeedQuery(model.FetchParams{DateFilter: "lastweek"}, time.Now()); err == nil {
		t.Fatal("expected error for invalid date filter")
	}
}

func TestParseDateFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"0d", 0, true},
		{"-1h", 0, true},
		{"xd", 0, true},
		{"week", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDateFilter(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDateFilter(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDateFilter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
