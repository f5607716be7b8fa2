package loans

import (
	"time"

	"ICTSERVE-backend/internal/enums"
)

// ===== Requests =====

type SubmitRequest struct {
	ApplicantName  string              `json:"applicant_name" binding:"required"`
	ApplicantEmail string              `json:"applicant_email" binding:"required,email"`
	ApplicantPhone string              `json:"applicant_phone" binding:"required"`
	StaffID        *string             `json:"staff_id,omitempty"`
	Grade          *string             `json:"grade,omitempty"`
	Division       *string             `json:"division,omitempty"`
	Purpose        string              `json:"purpose" binding:"required"`
	Location       string              `json:"location" binding:"required"`
	LoanStartDate  string              `json:"loan_start_date" binding:"required"` // YYYY-MM-DD
	LoanEndDate    string              `json:"loan_end_date" binding:"required"`
	Priority       *enums.LoanPriority `json:"priority,omitempty"`
	ApproverEmail  *string             `json:"approver_email,omitempty"`
	AssetIDs       []int64             `json:"asset_ids" binding:"required,min=1"`
}

type ApproveRequest struct {
	ApproverName string  `json:"approver_name"`
	Remarks      *string `json:"remarks,omitempty"`
}

type DeclineRequest struct {
	Reason string `json:"reason"`
}

type RequestInfoRequest struct {
	Note string `json:"note" binding:"required"`
}

type ExtendRequest struct {
	NewEndDate string `json:"new_end_date" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

type IssueItem struct {
	AssetID   int64                `json:"asset_id" binding:"required"`
	Condition enums.AssetCondition `json:"condition" binding:"required"`
}

type IssueRequest struct {
	// 省略された資産は現在の状態で払い出す
	Items []IssueItem `json:"items,omitempty"`
	Notes *string     `json:"notes,omitempty"`
}

type ReturnItem struct {
	AssetID        int64                `json:"asset_id" binding:"required"`
	ConditionAfter enums.AssetCondition `json:"condition_after" binding:"required"`
	DamageReport   *string              `json:"damage_report,omitempty"`
}

type ReturnRequest struct {
	Items []ReturnItem `json:"items" binding:"required,min=1"`
	Notes *string      `json:"notes,omitempty"`
}

// ReturnNotificationRequest は外部システムからの返却通知（資産単位）
type ReturnNotificationRequest struct {
	ConditionAfter enums.AssetCondition `json:"condition_after" binding:"required"`
	DamageReport   *string              `json:"damage_report,omitempty"`
	ProcessedBy    *string              `json:"processed_by,omitempty"`
}

type RecallRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ListFilter struct {
	Status         *enums.LoanStatus
	Priority       *enums.LoanPriority
	ApplicantEmail *string
	StartFrom      *time.Time // loan_start_date >= ...
	StartTo        *time.Time // loan_start_date <= ...
}

// ===== Responses =====

type ItemResponse struct {
	AssetID         int64                 `json:"asset_id"`
	Quantity        int                   `json:"quantity"`
	UnitValue       float64               `json:"unit_value"`
	TotalValue      float64               `json:"total_value"`
	ConditionBefore enums.AssetCondition  `json:"condition_before"`
	ConditionAfter  *enums.AssetCondition `json:"condition_after,omitempty"`
	DamageReport    *string               `json:"damage_report,omitempty"`
}

type ApplicationResponse struct {
	ID                  int64              `json:"id"`
	ApplicationNumber   string             `json:"application_number"`
	Status              enums.LoanStatus   `json:"status"`
	StatusLabel         string             `json:"status_label"`
	StatusColor         string             `json:"status_color"`
	Priority            enums.LoanPriority `json:"priority"`
	ApplicantName       string             `json:"applicant_name"`
	ApplicantEmail      string             `json:"applicant_email"`
	ApplicantPhone      string             `json:"applicant_phone"`
	StaffID             *string            `json:"staff_id,omitempty"`
	Grade               *string            `json:"grade,omitempty"`
	Division            *string            `json:"division,omitempty"`
	Purpose             string             `json:"purpose"`
	Location            string             `json:"location"`
	LoanStartDate       string             `json:"loan_start_date"`
	LoanEndDate         string             `json:"loan_end_date"`
	ApproverEmail       *string            `json:"approver_email,omitempty"`
	ApprovedAt          *time.Time         `json:"approved_at,omitempty"`
	ApprovedByName      *string            `json:"approved_by_name,omitempty"`
	ApprovalMethod      *string            `json:"approval_method,omitempty"`
	ApprovalRemarks     *string            `json:"approval_remarks,omitempty"`
	RejectedReason      *string            `json:"rejected_reason,omitempty"`
	InfoRequestNote     *string            `json:"info_request_note,omitempty"`
	MaintenanceRequired bool               `json:"maintenance_required"`
	TotalValue          float64            `json:"total_value"`
	UserID              *string            `json:"user_id,omitempty"`
	NextStatuses        []enums.LoanStatus `json:"next_statuses"`
	Items               []ItemResponse     `json:"items"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// TrackResponse はゲスト向けの追跡ビュー（個人情報は返さない）
type TrackResponse struct {
	ApplicationNumber string           `json:"application_number"`
	Status            enums.LoanStatus `json:"status"`
	StatusLabel       string           `json:"status_label"`
	LoanStartDate     string           `json:"loan_start_date"`
	LoanEndDate       string           `json:"loan_end_date"`
	ApprovedAt        *time.Time       `json:"approved_at,omitempty"`
	RejectedReason    *string          `json:"rejected_reason,omitempty"`
	InfoRequestNote   *string          `json:"info_request_note,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// ApprovalView はメール承認画面向けの要約
type ApprovalView struct {
	ApplicationNumber string           `json:"application_number"`
	Status            enums.LoanStatus `json:"status"`
	ApplicantName     string           `json:"applicant_name"`
	Division          *string          `json:"division,omitempty"`
	Purpose           string           `json:"purpose"`
	LoanStartDate     string           `json:"loan_start_date"`
	LoanEndDate       string           `json:"loan_end_date"`
	TotalValue        float64          `json:"total_value"`
	ItemCount         int              `json:"item_count"`
	ExpiresAt         time.Time        `json:"expires_at"`
}

type TransactionResponse struct {
	ID              int64                 `json:"id"`
	TransactionULID string                `json:"transaction_ulid"`
	AssetID         int64                 `json:"asset_id"`
	Type            enums.TransactionType `json:"transaction_type"`
	ProcessedBy     *string               `json:"processed_by,omitempty"`
	ProcessedAt     time.Time             `json:"processed_at"`
	ConditionBefore *enums.AssetCondition `json:"condition_before,omitempty"`
	ConditionAfter  *enums.AssetCondition `json:"condition_after,omitempty"`
	DamageReport    *string               `json:"damage_report,omitempty"`
	Notes           *string               `json:"notes,omitempty"`
}
