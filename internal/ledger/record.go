// Package ledger is the append-only store of request outcomes and its
// aggregation queries.
package ledger

import "time"

// timestampLayout keeps fixed-width microseconds so string comparison equals
// chronological comparison and adjacent requests in the same second still
// order correctly.
const timestampLayout = "2006-01-02T15:04:05.000000"

// Record is one request attempt: success, provider error, or client
// abandonment. Written exactly once per attempt and never updated.
// On error, cost and token fields stay zero.
type Record struct {
	ID               string  `gorm:"primaryKey" json:"-"`
	Timestamp        string  `gorm:"index;not null" json:"timestamp"`
	Model            string  `gorm:"not null" json:"model"`
	Provider         string  `json:"provider"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
	DurationMs       int64   `gorm:"column:duration_ms" json:"duration_ms"`
	RequestData      string  `gorm:"type:text" json:"request_data"`
	ResponseData     *string `gorm:"type:text" json:"response_data"`
	Error            *string `gorm:"type:text" json:"error,omitempty"`
}

func (Record) TableName() string { return "requests" }

// Now formats the current instant as a ledger timestamp.
func Now() string {
	return time.Now().UTC().Format(timestampLayout)
}

// FormatTimestamp renders t in the ledger's timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
