package tickets

import (
	"database/sql"
	"time"

	"ICTSERVE-backend/internal/enums"
)

// 起票元
const (
	SourcePortal = "portal"
	SourceAdmin  = "admin"
	SourceSystem = "system"
)

type Ticket struct {
	ID                 int64
	TicketNumber       string
	Subject            string
	Description        string
	CategoryID         int64
	Priority           enums.TicketPriority
	Status             enums.TicketStatus
	RequesterName      string
	RequesterEmail     string
	AssetID            sql.NullInt64
	AssignedTo         sql.NullString
	Source             string
	SLAResponseDueAt   sql.NullTime
	SLAResolutionDueAt sql.NullTime
	FirstResponseAt    sql.NullTime
	ResolvedAt         sql.NullTime
	ClosedAt           sql.NullTime
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ===== Requests =====

// CreateRequest: ポータル/職員からの起票
type CreateRequest struct {
	Subject        string                `json:"subject" binding:"required"`
	Description    string                `json:"description" binding:"required"`
	CategoryID     int64                 `json:"category_id" binding:"required"`
	Priority       *enums.TicketPriority `json:"priority,omitempty"`
	RequesterName  string                `json:"requester_name" binding:"required"`
	RequesterEmail string                `json:"requester_email" binding:"required,email"`
	AssetID        *int64                `json:"asset_id,omitempty"`
}

type UpdateRequest struct {
	Subject     *string               `json:"subject,omitempty"`
	Description *string               `json:"description,omitempty"`
	CategoryID  *int64                `json:"category_id,omitempty"`
	Priority    *enums.TicketPriority `json:"priority,omitempty"`
}

type AssignRequest struct {
	AssignedTo string `json:"assigned_to" binding:"required"`
}

type StatusRequest struct {
	Status enums.TicketStatus `json:"status" binding:"required"`
}

type ListFilter struct {
	Status         *enums.TicketStatus
	Priority       *enums.TicketPriority
	CategoryID     *int64
	AssetID        *int64
	RequesterEmail *string
}

// ===== Responses =====

type Response struct {
	ID                 int64                `json:"id"`
	TicketNumber       string               `json:"ticket_number"`
	Subject            string               `json:"subject"`
	Description        string               `json:"description"`
	CategoryID         int64                `json:"category_id"`
	Priority           enums.TicketPriority `json:"priority"`
	PriorityLabel      string               `json:"priority_label"`
	Status             enums.TicketStatus   `json:"status"`
	StatusLabel        string               `json:"status_label"`
	RequesterName      string               `json:"requester_name"`
	RequesterEmail     string               `json:"requester_email"`
	AssetID            *int64               `json:"asset_id,omitempty"`
	AssignedTo         *string              `json:"assigned_to,omitempty"`
	Source             string               `json:"source"`
	SLAResponseDueAt   *time.Time           `json:"sla_response_due_at,omitempty"`
	SLAResolutionDueAt *time.Time           `json:"sla_resolution_due_at,omitempty"`
	FirstResponseAt    *time.Time           `json:"first_response_at,omitempty"`
	ResolvedAt         *time.Time           `json:"resolved_at,omitempty"`
	ClosedAt           *time.Time           `json:"closed_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// TrackResponse はゲスト追跡用
type TrackResponse struct {
	TicketNumber       string             `json:"ticket_number"`
	Subject            string             `json:"subject"`
	Status             enums.TicketStatus `json:"status"`
	StatusLabel        string             `json:"status_label"`
	SLAResolutionDueAt *time.Time         `json:"sla_resolution_due_at,omitempty"`
	ResolvedAt         *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

func ptrTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func (t *Ticket) Response() Response {
	r := Response{
		ID:                 t.ID,
		TicketNumber:       t.TicketNumber,
		Subject:            t.Subject,
		Description:        t.Description,
		CategoryID:         t.CategoryID,
		Priority:           t.Priority,
		PriorityLabel:      t.Priority.Label(),
		Status:             t.Status,
		StatusLabel:        t.Status.Label(),
		RequesterName:      t.RequesterName,
		RequesterEmail:     t.RequesterEmail,
		Source:             t.Source,
		SLAResponseDueAt:   ptrTime(t.SLAResponseDueAt),
		SLAResolutionDueAt: ptrTime(t.SLAResolutionDueAt),
		FirstResponseAt:    ptrTime(t.FirstResponseAt),
		ResolvedAt:         ptrTime(t.ResolvedAt),
		ClosedAt:           ptrTime(t.ClosedAt),
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
	if t.AssetID.Valid {
		v := t.AssetID.Int64
		r.AssetID = &v
	}
	if t.AssignedTo.Valid {
		v := t.AssignedTo.String
		r.AssignedTo = &v
	}
	return r
}

func (t *Ticket) Track() TrackResponse {
	return TrackResponse{
		TicketNumber:       t.TicketNumber,
		Subject:            t.Subject,
		Status:             t.Status,
		StatusLabel:        t.Status.Label(),
		SLAResolutionDueAt: ptrTime(t.SLAResolutionDueAt),
		ResolvedAt:         ptrTime(t.ResolvedAt),
		CreatedAt:          t.CreatedAt,
	}
}
