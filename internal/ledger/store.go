package ledger

import (
	"fmt"
	"math"
	"sort"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/puente-ai/puente/internal/timewindow"
	"github.com/puente-ai/puente/internal/util"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// Body storage caps, matching what the dashboard can usefully display.
	maxRequestBody  = 1024 * 1024
	maxResponseBody = 512 * 1024

	DefaultLimit = 50
	MaxLimit     = 200

	recentErrorLimit = 10
)

// Store wraps the sqlite ledger. Appends serialize through sqlite's writer
// lock; reads run concurrently. Records are append-only, so readers never
// observe partial updates.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the ledger database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	return NewStore(db)
}

// NewStore builds a Store over an existing connection and ensures the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}
	// Partial indexes for the dashboard's hot queries; AutoMigrate cannot
	// express these.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_requests_date_provider ON requests(DATE(timestamp), provider) WHERE error IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_requests_cost ON requests(cost) WHERE error IS NULL`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("create ledger index: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Append writes one record. Missing ID and Timestamp are filled in; oversized
// payloads are truncated before they hit disk.
func (s *Store) Append(rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = Now()
	}
	rec.RequestData = util.TruncateLog(rec.RequestData, maxRequestBody)
	if rec.ResponseData != nil {
		truncated := util.TruncateLog(*rec.ResponseData, maxResponseBody)
		rec.ResponseData = &truncated
	}
	return s.db.Create(rec).Error
}

// Filter selects records for Query.
type Filter struct {
	Window   timewindow.Window
	Provider string
	Model    string
	MinCost  *float64
	MaxCost  *float64
	Search   string
	Offset   int
	Limit    int
}

// Page is a slice of matching records plus aggregates over the full match.
type Page struct {
	Requests    []Record `json:"requests"`
	Total       int64    `json:"total"`
	TotalTokens int64    `json:"total_tokens"`
	TotalCost   float64  `json:"total_cost"`
	AvgCost     float64  `json:"avg_cost"`
	Offset      int      `json:"offset"`
	Limit       int      `json:"limit"`
}

// Query returns successful records matching the filter, newest first.
// Aggregates cover every matching record, not just the returned page, so an
// offset past the end still reports correct totals.
func (s *Store) Query(f Filter) (*Page, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	where := "error IS NULL" + f.Window.Clause
	args := append([]any{}, f.Window.Args...)

	if f.Provider != "" {
		where += " AND provider = ?"
		args = append(args, f.Provider)
	}
	if f.Model != "" {
		where += " AND model = ?"
		args = append(args, f.Model)
	}
	if f.MinCost != nil {
		where += " AND cost >= ?"
		args = append(args, *f.MinCost)
	}
	if f.MaxCost != nil {
		where += " AND cost <= ?"
		args = append(args, *f.MaxCost)
	}
	if f.Search != "" {
		where += " AND (model LIKE ? OR request_data LIKE ? OR response_data LIKE ?)"
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	var agg struct {
		Total       int64
		TotalTokens int64
		TotalCost   float64
		AvgCost     float64
	}
	err := s.db.Raw(fmt.Sprintf(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(total_tokens), 0) AS total_tokens,
		       COALESCE(SUM(cost), 0) AS total_cost,
		       COALESCE(AVG(cost), 0) AS avg_cost
		FROM requests
		WHERE %s`, where), args...).Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	var rows []Record
	err = s.db.Raw(fmt.Sprintf(`
		SELECT * FROM requests
		WHERE %s
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`, where), append(args, limit, offset)...).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Record{}
	}

	return &Page{
		Requests:    rows,
		Total:       agg.Total,
		TotalTokens: agg.TotalTokens,
		TotalCost:   agg.TotalCost,
		AvgCost:     agg.AvgCost,
		Offset:      offset,
		Limit:       limit,
	}, nil
}

// Totals is the top-line aggregate block.
type Totals struct {
	Requests         int64   `json:"requests"`
	Cost             float64 `json:"cost"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	AvgDurationMs    float64 `json:"avg_duration_ms"`
}

// ModelStat aggregates one (model, provider) pair.
type ModelStat struct {
	Model    string  `json:"model"`
	Provider string  `json:"provider"`
	Requests int64   `json:"requests"`
	Cost     float64 `json:"cost"`
	Tokens   int64   `json:"tokens"`
}

// ProviderStat aggregates one provider.
type ProviderStat struct {
	Provider string  `json:"provider"`
	Requests int64   `json:"requests"`
	Cost     float64 `json:"cost"`
	Tokens   int64   `json:"tokens"`
}

// PerformanceStat reports throughput per model, computed only over records
// with positive duration and positive completion tokens.
type PerformanceStat struct {
	Model             string  `json:"model"`
	Requests          int64   `json:"requests"`
	AvgTokensPerSec   float64 `json:"avg_tokens_per_sec"`
	AvgDurationMs     float64 `json:"avg_duration_ms"`
	MinTokensPerSec   float64 `json:"min_tokens_per_sec"`
	MaxTokensPerSec   float64 `json:"max_tokens_per_sec"`
	AvgCostPerRequest float64 `json:"avg_cost_per_request"`
}

// ErrorEntry is one recent failure shown on the dashboard.
type ErrorEntry struct {
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
	Error     string `json:"error"`
}

// Stats is the full aggregate view for a time window.
type Stats struct {
	Totals       Totals            `json:"totals"`
	ByModel      []ModelStat       `json:"by_model"`
	ByProvider   []ProviderStat    `json:"by_provider"`
	Performance  []PerformanceStat `json:"performance"`
	RecentErrors []ErrorEntry      `json:"recent_errors"`
}

// Stats computes totals, per-model and per-provider rollups, throughput, and
// recent errors for the window. Success-side numbers exclude errored rows;
// throughput additionally excludes rows that would divide by zero, without
// removing them from the totals.
func (s *Store) Stats(w timewindow.Window) (*Stats, error) {
	out := &Stats{
		ByModel:      []ModelStat{},
		ByProvider:   []ProviderStat{},
		Performance:  []PerformanceStat{},
		RecentErrors: []ErrorEntry{},
	}

	err := s.db.Raw(fmt.Sprintf(`
		SELECT COUNT(*) AS requests,
		       COALESCE(SUM(cost), 0) AS cost,
		       COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
		       COALESCE(SUM(completion_tokens), 0) AS completion_tokens,
		       COALESCE(AVG(duration_ms), 0) AS avg_duration_ms
		FROM requests
		WHERE error IS NULL%s`, w.Clause), w.Args...).Scan(&out.Totals).Error
	if err != nil {
		return nil, err
	}
	out.Totals.Cost = round(out.Totals.Cost, 4)
	out.Totals.AvgDurationMs = round(out.Totals.AvgDurationMs, 2)

	err = s.db.Raw(fmt.Sprintf(`
		SELECT model, provider,
		       COUNT(*) AS requests,
		       COALESCE(SUM(cost), 0) AS cost,
		       COALESCE(SUM(total_tokens), 0) AS tokens
		FROM requests
		WHERE error IS NULL%s
		GROUP BY model, provider
		ORDER BY cost DESC`, w.Clause), w.Args...).Scan(&out.ByModel).Error
	if err != nil {
		return nil, err
	}
	for i := range out.ByModel {
		out.ByModel[i].Cost = round(out.ByModel[i].Cost, 4)
	}

	err = s.db.Raw(fmt.Sprintf(`
		SELECT provider,
		       COUNT(*) AS requests,
		       COALESCE(SUM(cost), 0) AS cost,
		       COALESCE(SUM(total_tokens), 0) AS tokens
		FROM requests
		WHERE error IS NULL%s
		GROUP BY provider
		ORDER BY cost DESC`, w.Clause), w.Args...).Scan(&out.ByProvider).Error
	if err != nil {
		return nil, err
	}
	for i := range out.ByProvider {
		out.ByProvider[i].Cost = round(out.ByProvider[i].Cost, 4)
	}

	err = s.db.Raw(fmt.Sprintf(`
		SELECT model,
		       COUNT(*) AS requests,
		       AVG(CAST(completion_tokens AS REAL) / (CAST(duration_ms AS REAL) / 1000.0)) AS avg_tokens_per_sec,
		       AVG(duration_ms) AS avg_duration_ms,
		       MIN(CAST(completion_tokens AS REAL) / (CAST(duration_ms AS REAL) / 1000.0)) AS min_tokens_per_sec,
		       MAX(CAST(completion_tokens AS REAL) / (CAST(duration_ms AS REAL) / 1000.0)) AS max_tokens_per_sec,
		       AVG(cost) AS avg_cost_per_request
		FROM requests
		WHERE error IS NULL
		  AND completion_tokens > 0
		  AND duration_ms > 0%s
		GROUP BY model
		ORDER BY avg_tokens_per_sec DESC`, w.Clause), w.Args...).Scan(&out.Performance).Error
	if err != nil {
		return nil, err
	}
	for i := range out.Performance {
		p := &out.Performance[i]
		p.AvgTokensPerSec = round(p.AvgTokensPerSec, 2)
		p.AvgDurationMs = round(p.AvgDurationMs, 2)
		p.MinTokensPerSec = round(p.MinTokensPerSec, 2)
		p.MaxTokensPerSec = round(p.MaxTokensPerSec, 2)
		p.AvgCostPerRequest = round(p.AvgCostPerRequest, 6)
	}

	err = s.db.Raw(fmt.Sprintf(`
		SELECT timestamp, model, error
		FROM requests
		WHERE error IS NOT NULL%s
		ORDER BY timestamp DESC
		LIMIT %d`, w.Clause, recentErrorLimit), w.Args...).Scan(&out.RecentErrors).Error
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Breakdown is the provider+model slice nested under each rollup bucket.
type Breakdown struct {
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
	Requests int64   `json:"requests"`
	Cost     float64 `json:"cost"`
}

// DayStat is one day's bucket in the daily rollup.
type DayStat struct {
	Date        string      `json:"date"`
	Requests    int64       `json:"requests"`
	Cost        float64     `json:"cost"`
	TotalTokens int64       `json:"total_tokens"`
	ByModel     []Breakdown `json:"by_model"`
}

// DailyStats is the daily rollup response.
type DailyStats struct {
	Daily         []DayStat `json:"daily"`
	TotalDays     int       `json:"total_days"`
	TotalCost     float64   `json:"total_cost"`
	TotalRequests int64     `json:"total_requests"`
}

type bucketRow struct {
	Bucket   string
	Provider string
	Model    string
	Requests int64
	Cost     float64
	Tokens   int64
}

// Daily aggregates per local calendar date, with a provider+model breakdown
// under each day, newest day first.
func (s *Store) Daily(w timewindow.Window) (*DailyStats, error) {
	dateExpr := w.DateExpr()
	var rows []bucketRow
	err := s.db.Raw(fmt.Sprintf(`
		SELECT %s AS bucket, provider, model,
		       COUNT(*) AS requests,
		       COALESCE(SUM(cost), 0) AS cost,
		       COALESCE(SUM(total_tokens), 0) AS tokens
		FROM requests
		WHERE error IS NULL%s
		GROUP BY %s, provider, model
		ORDER BY bucket DESC`, dateExpr, w.Clause, dateExpr), w.Args...).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byDate := map[string]*DayStat{}
	for _, row := range rows {
		day, ok := byDate[row.Bucket]
		if !ok {
			day = &DayStat{Date: row.Bucket, ByModel: []Breakdown{}}
			byDate[row.Bucket] = day
		}
		day.Requests += row.Requests
		day.Cost += row.Cost
		day.TotalTokens += row.Tokens
		day.ByModel = append(day.ByModel, Breakdown{
			Provider: row.Provider,
			Model:    row.Model,
			Requests: row.Requests,
			Cost:     round(row.Cost, 4),
		})
	}

	out := &DailyStats{Daily: []DayStat{}}
	for _, day := range byDate {
		day.Cost = round(day.Cost, 4)
		out.Daily = append(out.Daily, *day)
		out.TotalCost += day.Cost
		out.TotalRequests += day.Requests
	}
	sort.Slice(out.Daily, func(i, j int) bool { return out.Daily[i].Date > out.Daily[j].Date })
	out.TotalDays = len(out.Daily)
	out.TotalCost = round(out.TotalCost, 4)
	return out, nil
}

// HourStat is one hour's bucket in the hourly rollup.
type HourStat struct {
	Hour        int         `json:"hour"`
	Requests    int64       `json:"requests"`
	Cost        float64     `json:"cost"`
	TotalTokens int64       `json:"total_tokens"`
	ByModel     []Breakdown `json:"by_model"`
}

// HourlyStats is the single-day hourly rollup: always a dense 24-element
// series, with empty hours zero-filled.
type HourlyStats struct {
	Hourly        []HourStat `json:"hourly"`
	TotalCost     float64    `json:"total_cost"`
	TotalRequests int64      `json:"total_requests"`
}

// Hourly aggregates a single local day by hour.
func (s *Store) Hourly(w timewindow.Window) (*HourlyStats, error) {
	hourExpr := w.HourExpr()
	var rows []struct {
		Bucket   int
		Provider string
		Model    string
		Requests int64
		Cost     float64
		Tokens   int64
	}
	err := s.db.Raw(fmt.Sprintf(`
		SELECT %s AS bucket, provider, model,
		       COUNT(*) AS requests,
		       COALESCE(SUM(cost), 0) AS cost,
		       COALESCE(SUM(total_tokens), 0) AS tokens
		FROM requests
		WHERE error IS NULL%s
		GROUP BY %s, provider, model
		ORDER BY bucket ASC`, hourExpr, w.Clause, hourExpr), w.Args...).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byHour := map[int]*HourStat{}
	for _, row := range rows {
		hour, ok := byHour[row.Bucket]
		if !ok {
			hour = &HourStat{Hour: row.Bucket, ByModel: []Breakdown{}}
			byHour[row.Bucket] = hour
		}
		hour.Requests += row.Requests
		hour.Cost += row.Cost
		hour.TotalTokens += row.Tokens
		hour.ByModel = append(hour.ByModel, Breakdown{
			Provider: row.Provider,
			Model:    row.Model,
			Requests: row.Requests,
			Cost:     round(row.Cost, 4),
		})
	}

	out := &HourlyStats{Hourly: make([]HourStat, 0, 24)}
	for h := 0; h < 24; h++ {
		if hour, ok := byHour[h]; ok {
			hour.Cost = round(hour.Cost, 4)
			out.Hourly = append(out.Hourly, *hour)
			out.TotalCost += hour.Cost
			out.TotalRequests += hour.Requests
		} else {
			out.Hourly = append(out.Hourly, HourStat{Hour: h, ByModel: []Breakdown{}})
		}
	}
	out.TotalCost = round(out.TotalCost, 4)
	return out, nil
}

// ClearErrors deletes every errored record and reports how many went away.
func (s *Store) ClearErrors() (int64, error) {
	res := s.db.Exec("DELETE FROM requests WHERE error IS NOT NULL")
	return res.RowsAffected, res.Error
}

// DateRange reports the span of successful data in the ledger. Nil fields
// mean the ledger holds no successful records.
type DateRange struct {
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

func (s *Store) DateRange() (*DateRange, error) {
	var row struct {
		Start *string
		End   *string
	}
	err := s.db.Raw(`
		SELECT MIN(DATE(timestamp)) AS start, MAX(DATE(timestamp)) AS end
		FROM requests
		WHERE error IS NULL`).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &DateRange{StartDate: row.Start, EndDate: row.End}, nil
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
