package assets

import (
	"time"

	"ICTSERVE-backend/internal/enums"
)

// ===== Requests =====

type CreateAssetRequest struct {
	Name                string                `json:"name" binding:"required"`
	Category            string                `json:"category" binding:"required"`
	Brand               *string               `json:"brand,omitempty"`
	Model               *string               `json:"model,omitempty"`
	SerialNumber        *string               `json:"serial_number,omitempty"`
	Specification       *string               `json:"specification,omitempty"`
	Location            *string               `json:"location,omitempty"`
	Condition           *enums.AssetCondition `json:"condition,omitempty"` // 未指定なら good
	CurrentValue        float64               `json:"current_value"`
	NextMaintenanceDate *string               `json:"next_maintenance_date,omitempty"` // YYYY-MM-DD
	Notes               *string               `json:"notes,omitempty"`
}

// 部分更新（nil は変更なし）
type UpdateAssetRequest struct {
	Name                *string               `json:"name,omitempty"`
	Category            *string               `json:"category,omitempty"`
	Brand               *string               `json:"brand,omitempty"`
	Model               *string               `json:"model,omitempty"`
	SerialNumber        *string               `json:"serial_number,omitempty"`
	Specification       *string               `json:"specification,omitempty"`
	Location            *string               `json:"location,omitempty"`
	Status              *enums.AssetStatus    `json:"status,omitempty"`
	Condition           *enums.AssetCondition `json:"condition,omitempty"`
	CurrentValue        *float64              `json:"current_value,omitempty"`
	NextMaintenanceDate *string               `json:"next_maintenance_date,omitempty"`
	Notes               *string               `json:"notes,omitempty"`
}

type RetireAssetRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type AssetSearchQuery struct {
	Status    *enums.AssetStatus
	Condition *enums.AssetCondition
	Category  *string
	Location  *string
	Q         *string // name / asset_tag 部分一致
}

// ===== Responses =====

type AssetResponse struct {
	AssetID                 int64                `json:"asset_id"`
	AssetTag                string               `json:"asset_tag"`
	Name                    string               `json:"name"`
	Category                string               `json:"category"`
	Brand                   *string              `json:"brand,omitempty"`
	Model                   *string              `json:"model,omitempty"`
	SerialNumber            *string              `json:"serial_number,omitempty"`
	Specification           *string              `json:"specification,omitempty"`
	Location                *string              `json:"location,omitempty"`
	Status                  enums.AssetStatus    `json:"status"`
	StatusLabel             string               `json:"status_label"`
	Condition               enums.AssetCondition `json:"condition"`
	ConditionLabel          string               `json:"condition_label"`
	CurrentValue            float64              `json:"current_value"`
	MaintenanceTicketsCount int                  `json:"maintenance_tickets_count"`
	LastMaintenanceDate     *string              `json:"last_maintenance_date,omitempty"`
	NextMaintenanceDate     *string              `json:"next_maintenance_date,omitempty"`
	RetiredReason           *string              `json:"retired_reason,omitempty"`
	Notes                   *string              `json:"notes,omitempty"`
	CreatedAt               time.Time            `json:"created_at"`
	UpdatedAt               time.Time            `json:"updated_at"`
}
