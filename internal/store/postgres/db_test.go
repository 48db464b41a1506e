package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

func newTestHook(buf *bytes.Buffer, threshold time.Duration, elapsed time.Duration, start time.Time) *queryLogHook {
	log := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newQueryLogHook(log, threshold)
	h.now = func() time.Time { return start.Add(elapsed) }
	return h
}

func TestQueryLogHook(t *testing.T) {
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	longQuery := "SELECT " + strings.Repeat("x", 300)

	tests := []struct {
		name    string
		elapsed time.Duration
		err     error
		query   string
		want    string
	}{
		{name: "fast query is silent", elapsed: 10 * time.Millisecond, query: "SELECT 1"},
		{name: "slow query", elapsed: 600 * time.Millisecond, query: "SELECT 1", want: "slow query"},
		{name: "failed query", elapsed: time.Millisecond, query: "SELECT 1", err: errors.New("connection reset"), want: "query failed"},
		{name: "no rows is silent", elapsed: time.Millisecond, query: "SELECT 1", err: sql.ErrNoRows},
		{name: "wrapped no rows is silent", elapsed: time.Millisecond, query: "SELECT 1", err: fmt.Errorf("scan: %w", sql.ErrNoRows)},
		{name: "unique violation is silent", elapsed: time.Millisecond, query: "INSERT", err: &pgconn.PgError{Code: "23505"}},
		{name: "slow query is truncated", elapsed: time.Second, query: longQuery, want: "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newTestHook(&buf, 0, tt.elapsed, start)
			h.AfterQuery(context.Background(), &bun.QueryEvent{StartTime: start, Query: tt.query, Err: tt.err})

			out := buf.String()
			if tt.want == "" {
				if out != "" {
					t.Fatalf("log = %q, want nothing", out)
				}
				return
			}
			if !strings.Contains(out, tt.want) {
				t.Fatalf("log = %q, want it to contain %q", out, tt.want)
			}
			if !strings.Contains(out, "component=postgres") {
				t.Fatalf("log = %q, want component attribute", out)
			}
			if strings.Contains(out, strings.Repeat("x", 250)) {
				t.Fatalf("log carries the untruncated query: %q", out)
			}
		})
	}
}

func TestQueryLogHook_CustomThreshold(t *testing.T) {
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	h := newTestHook(&buf, 50*time.Millisecond, 60*time.Millisecond, start)
	h.AfterQuery(context.Background(), &bun.QueryEvent{StartTime: start, Query: "SELECT 1"})
	if !strings.Contains(buf.String(), "slow query") {
		t.Fatalf("log = %q, want slow query", buf.String())
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatalf("isUniqueViolation(23505) = false, want true")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("isUniqueViolation(23503) = true, want false")
	}
	if isUniqueViolation(nil) {
		t.Fatalf("isUniqueViolation(nil) = true, want false")
	}
}
