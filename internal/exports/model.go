// Package exports は貸出申請一覧のファイル出力（xlsx / csv）
package exports

import (
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"

	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Export struct {
	ID          int64
	ULID        string
	Format      string
	Status      string
	Filters     []byte
	FilePath    sql.NullString
	RowCount    int
	Error       sql.NullString
	RequestedBy sql.NullString
	CreatedAt   time.Time
	CompletedAt sql.NullTime
}

// Filters は申請一覧の絞り込み条件（JSON で保存）
type Filters struct {
	Status    string `json:"status,omitempty"`
	Priority  string `json:"priority,omitempty"`
	StartFrom string `json:"start_from,omitempty"` // YYYY-MM-DD
	StartTo   string `json:"start_to,omitempty"`
}

type CreateRequest struct {
	Format string `json:"format" binding:"required"`
	Filters
}

type Response struct {
	ID          int64      `json:"id"`
	ULID        string     `json:"export_id"`
	Format      string     `json:"format"`
	Status      string     `json:"status"`
	Filters     Filters    `json:"filters"`
	RowCount    int        `json:"row_count"`
	Error       *string    `json:"error,omitempty"`
	RequestedBy *string    `json:"requested_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
}

func (e *Export) Response() Response {
	r := Response{
		ID:        e.ID,
		ULID:      e.ULID,
		Format:    e.Format,
		Status:    e.Status,
		RowCount:  e.RowCount,
		CreatedAt: e.CreatedAt,
	}
	if len(e.Filters) > 0 {
		_ = json.Unmarshal(e.Filters, &r.Filters)
	}
	if e.Error.Valid {
		v := e.Error.String
		r.Error = &v
	}
	if e.RequestedBy.Valid {
		v := e.RequestedBy.String
		r.RequestedBy = &v
	}
	if e.CompletedAt.Valid {
		v := e.CompletedAt.Time
		r.CompletedAt = &v
	}
	if e.Status == StatusCompleted {
		r.DownloadURL = "/api/v2/admin/exports/" + e.ULID + "/download"
	}
	return r
}

func (e *Export) Filename() string {
	return "loan-submissions-" + e.ULID + "." + e.Format
}
