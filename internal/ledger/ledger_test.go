package ledger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/puente-ai/puente/internal/timewindow"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	return store
}

func strPtr(s string) *string { return &s }

func appendRecord(t *testing.T, store *Store, rec Record) {
	t.Helper()
	if err := store.Append(&rec); err != nil {
		t.Fatalf("append record: %v", err)
	}
}

func TestAppend_FillsDefaults(t *testing.T) {
	store := newTestStore(t)

	rec := Record{
		Model:       "gpt-4.1-mini",
		Provider:    "openai",
		RequestData: `{"model":"gpt-4.1-mini"}`,
	}
	if err := store.Append(&rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected generated ID")
	}
	if rec.Timestamp == "" {
		t.Error("expected generated timestamp")
	}
	if len(rec.Timestamp) != len("2006-01-02T15:04:05.000000") {
		t.Errorf("timestamp %q not in fixed-width microsecond form", rec.Timestamp)
	}
}

func TestAppend_TruncatesOversizedBodies(t *testing.T) {
	store := newTestStore(t)

	big := strings.Repeat("x", maxRequestBody+100)
	rec := Record{Model: "m", Provider: "p", RequestData: big}
	if err := store.Append(&rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(rec.RequestData) >= len(big) {
		t.Errorf("request body not truncated: %d bytes", len(rec.RequestData))
	}
	if !strings.Contains(rec.RequestData, "truncated") {
		t.Error("expected truncation marker in stored body")
	}
}

func TestQuery_ExcludesErrorsAndPaginates(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		appendRecord(t, store, Record{
			Timestamp:        fmt.Sprintf("2025-06-15T10:00:0%d.000000", i),
			Model:            "gpt-4.1-mini",
			Provider:         "openai",
			TotalTokens:      100,
			CompletionTokens: 40,
			Cost:             0.01,
			RequestData:      "{}",
		})
	}
	appendRecord(t, store, Record{
		Timestamp:   "2025-06-15T10:00:09.000000",
		Model:       "gpt-4.1-mini",
		Provider:    "openai",
		RequestData: "{}",
		Error:       strPtr("llm.RateLimitError: OpenAIException - too fast"),
	})

	page, err := store.Query(Filter{Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("total = %d, want 5 (errors excluded)", page.Total)
	}
	if len(page.Requests) != 2 {
		t.Errorf("page size = %d, want 2", len(page.Requests))
	}
	if page.TotalTokens != 500 {
		t.Errorf("total tokens = %d, want 500", page.TotalTokens)
	}
	// Newest first.
	if page.Requests[0].Timestamp < page.Requests[1].Timestamp {
		t.Error("expected descending timestamp order")
	}

	// Offset past the end still reports full-match aggregates.
	tail, err := store.Query(Filter{Limit: 2, Offset: 100})
	if err != nil {
		t.Fatalf("query offset: %v", err)
	}
	if len(tail.Requests) != 0 || tail.Total != 5 {
		t.Errorf("offset page: rows=%d total=%d, want 0/5", len(tail.Requests), tail.Total)
	}
}

func TestQuery_ClampsLimit(t *testing.T) {
	store := newTestStore(t)

	page, err := store.Query(Filter{Limit: 10000})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Limit != MaxLimit {
		t.Errorf("limit = %d, want %d", page.Limit, MaxLimit)
	}

	page, err = store.Query(Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Limit != DefaultLimit {
		t.Errorf("default limit = %d, want %d", page.Limit, DefaultLimit)
	}
}

func TestQuery_AttributeAndSearchFilters(t *testing.T) {
	store := newTestStore(t)

	appendRecord(t, store, Record{
		Timestamp: "2025-06-15T10:00:00.000000", Model: "gpt-4.1-mini", Provider: "openai",
		Cost: 0.002, RequestData: `{"messages":[{"content":"hello capital of france"}]}`,
	})
	appendRecord(t, store, Record{
		Timestamp: "2025-06-15T11:00:00.000000", Model: "claude-sonnet-4-20250514", Provider: "anthropic",
		Cost: 0.2, RequestData: `{"messages":[{"content":"write a poem"}]}`,
	})

	page, err := store.Query(Filter{Provider: "anthropic"})
	if err != nil {
		t.Fatalf("query provider: %v", err)
	}
	if page.Total != 1 || page.Requests[0].Provider != "anthropic" {
		t.Errorf("provider filter matched %d rows", page.Total)
	}

	min := 0.1
	page, err = store.Query(Filter{MinCost: &min})
	if err != nil {
		t.Fatalf("query min cost: %v", err)
	}
	if page.Total != 1 || page.Requests[0].Model != "claude-sonnet-4-20250514" {
		t.Errorf("min cost filter matched %d rows", page.Total)
	}

	page, err = store.Query(Filter{Search: "france"})
	if err != nil {
		t.Fatalf("query search: %v", err)
	}
	if page.Total != 1 || page.Requests[0].Model != "gpt-4.1-mini" {
		t.Errorf("search filter matched %d rows", page.Total)
	}
}

func TestStats_SeparatesSuccessAndThroughput(t *testing.T) {
	store := newTestStore(t)

	// Normal record: contributes everywhere.
	appendRecord(t, store, Record{
		Timestamp: "2025-06-15T10:00:00.000000", Model: "gpt-4.1-mini", Provider: "openai",
		PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150,
		Cost: 0.01, DurationMs: 500, RequestData: "{}",
	})
	// Zero-duration record: counts toward totals, excluded from throughput.
	appendRecord(t, store, Record{
		Timestamp: "2025-06-15T11:00:00.000000", Model: "gpt-4.1-mini", Provider: "openai",
		PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15,
		Cost: 0.001, DurationMs: 0, RequestData: "{}",
	})
	// Errored record: only visible in recent errors.
	appendRecord(t, store, Record{
		Timestamp: "2025-06-15T12:00:00.000000", Model: "gpt-4.1-mini", Provider: "openai",
		RequestData: "{}", Error: strPtr("llm.TimeoutError: OpenAIException - timed out"),
	})

	stats, err := store.Stats(timewindow.Window{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Totals.Requests != 2 {
		t.Errorf("total requests = %d, want 2", stats.Totals.Requests)
	}
	if stats.Totals.CompletionTokens != 55 {
		t.Errorf("completion tokens = %d, want 55", stats.Totals.CompletionTokens)
	}
	if len(stats.Performance) != 1 {
		t.Fatalf("performance buckets = %d, want 1", len(stats.Performance))
	}
	perf := stats.Performance[0]
	if perf.Requests != 1 {
		t.Errorf("throughput sample count = %d, want 1 (zero-duration row excluded)", perf.Requests)
	}
	// 50 tokens over 0.5s.
	if perf.AvgTokensPerSec != 100 {
		t.Errorf("avg tokens/sec = %v, want 100", perf.AvgTokensPerSec)
	}
	if len(stats.RecentErrors) != 1 {
		t.Fatalf("recent errors = %d, want 1", len(stats.RecentErrors))
	}
	if !strings.Contains(stats.RecentErrors[0].Error, "TimeoutError") {
		t.Errorf("unexpected recent error %q", stats.RecentErrors[0].Error)
	}
}

func TestStats_WindowFiltering(t *testing.T) {
	store := newTestStore(t)

	appendRecord(t, store, Record{
		Timestamp: "2025-06-14T10:00:00.000000", Model: "m", Provider: "p",
		Cost: 1, RequestData: "{}",
	})
	appendRecord(t, store, Record{
		Timestamp: "2025-06-15T10:00:00.000000", Model: "m", Provider: "p",
		Cost: 2, RequestData: "{}",
	})

	day := "2025-06-15"
	win, err := timewindow.Build(nil, &day, &day, nil)
	if err != nil {
		t.Fatalf("build window: %v", err)
	}
	stats, err := store.Stats(win)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Totals.Requests != 1 {
		t.Errorf("windowed requests = %d, want 1", stats.Totals.Requests)
	}
	if stats.Totals.Cost != 2 {
		t.Errorf("windowed cost = %v, want 2", stats.Totals.Cost)
	}
}

func TestDaily_GroupsByLocalDate(t *testing.T) {
	store := newTestStore(t)

	// 2025-06-15T07:30 UTC is 2025-06-14 23:30 in UTC-8.
	appendRecord(t, store, Record{
		Timestamp: "2025-06-15T07:30:00.000000", Model: "gpt-4.1-mini", Provider: "openai",
		Cost: 0.01, TotalTokens: 100, RequestData: "{}",
	})
	// 2025-06-15T20:00 UTC is 2025-06-15 12:00 in UTC-8.
	appendRecord(t, store, Record{
		Timestamp: "2025-06-15T20:00:00.000000", Model: "gpt-4.1-mini", Provider: "openai",
		Cost: 0.02, TotalTokens: 200, RequestData: "{}",
	})

	utc, err := store.Daily(timewindow.Window{})
	if err != nil {
		t.Fatalf("daily utc: %v", err)
	}
	if utc.TotalDays != 1 {
		t.Fatalf("utc days = %d, want 1", utc.TotalDays)
	}
	if utc.Daily[0].Date != "2025-06-15" {
		t.Errorf("utc bucket = %q", utc.Daily[0].Date)
	}

	offset := -480
	win, err := timewindow.Build(nil, nil, nil, &offset)
	if err != nil {
		t.Fatalf("build window: %v", err)
	}
	local, err := store.Daily(win)
	if err != nil {
		t.Fatalf("daily local: %v", err)
	}
	if local.TotalDays != 2 {
		t.Fatalf("local days = %d, want 2 (midnight-straddling record moved)", local.TotalDays)
	}
	// Newest first.
	if local.Daily[0].Date != "2025-06-15" || local.Daily[1].Date != "2025-06-14" {
		t.Errorf("local buckets = %q, %q", local.Daily[0].Date, local.Daily[1].Date)
	}
}

func TestHourly_DenseTwentyFourHours(t *testing.T) {
	store := newTestStore(t)

	appendRecord(t, store, Record{
		Timestamp: "2025-06-15T09:15:00.000000", Model: "gpt-4.1-mini", Provider: "openai",
		Cost: 0.01, TotalTokens: 100, RequestData: "{}",
	})
	appendRecord(t, store, Record{
		Timestamp: "2025-06-15T09:45:00.000000", Model: "claude-sonnet-4-20250514", Provider: "anthropic",
		Cost: 0.05, TotalTokens: 300, RequestData: "{}",
	})

	win, err := timewindow.SingleDay("2025-06-15", nil)
	if err != nil {
		t.Fatalf("single day: %v", err)
	}
	hourly, err := store.Hourly(win)
	if err != nil {
		t.Fatalf("hourly: %v", err)
	}
	if len(hourly.Hourly) != 24 {
		t.Fatalf("buckets = %d, want 24", len(hourly.Hourly))
	}
	for h, bucket := range hourly.Hourly {
		if bucket.Hour != h {
			t.Errorf("bucket %d has hour %d", h, bucket.Hour)
		}
	}
	nine := hourly.Hourly[9]
	if nine.Requests != 2 || len(nine.ByModel) != 2 {
		t.Errorf("hour 9: requests=%d models=%d, want 2/2", nine.Requests, len(nine.ByModel))
	}
	if hourly.Hourly[10].Requests != 0 {
		t.Errorf("hour 10 should be zero-filled, got %d", hourly.Hourly[10].Requests)
	}
	if hourly.TotalRequests != 2 {
		t.Errorf("total requests = %d, want 2", hourly.TotalRequests)
	}
}

func TestClearErrors(t *testing.T) {
	store := newTestStore(t)

	appendRecord(t, store, Record{Model: "m", Provider: "p", RequestData: "{}"})
	appendRecord(t, store, Record{Model: "m", Provider: "p", RequestData: "{}", Error: strPtr("boom")})
	appendRecord(t, store, Record{Model: "m", Provider: "p", RequestData: "{}", Error: strPtr("boom again")})

	deleted, err := store.ClearErrors()
	if err != nil {
		t.Fatalf("clear errors: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	page, err := store.Query(Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("surviving rows = %d, want 1", page.Total)
	}
}

func TestDateRange(t *testing.T) {
	store := newTestStore(t)

	empty, err := store.DateRange()
	if err != nil {
		t.Fatalf("date range: %v", err)
	}
	if empty.StartDate != nil || empty.EndDate != nil {
		t.Errorf("empty ledger range = %v..%v, want nil..nil", empty.StartDate, empty.EndDate)
	}

	appendRecord(t, store, Record{Timestamp: "2025-06-10T08:00:00.000000", Model: "m", Provider: "p", RequestData: "{}"})
	appendRecord(t, store, Record{Timestamp: "2025-06-20T08:00:00.000000", Model: "m", Provider: "p", RequestData: "{}"})
	appendRecord(t, store, Record{Timestamp: "2025-06-25T08:00:00.000000", Model: "m", Provider: "p", RequestData: "{}", Error: strPtr("x")})

	rng, err := store.DateRange()
	if err != nil {
		t.Fatalf("date range: %v", err)
	}
	if rng.StartDate == nil || *rng.StartDate != "2025-06-10" {
		t.Errorf("start = %v, want 2025-06-10", rng.StartDate)
	}
	if rng.EndDate == nil || *rng.EndDate != "2025-06-20" {
		t.Errorf("end = %v, want 2025-06-20 (errored rows excluded)", rng.EndDate)
	}
}
