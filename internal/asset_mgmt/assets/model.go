package assets

import (
	"database/sql"
	"time"

	"ICTSERVE-backend/internal/enums"
)

const dateLayout = "2006-01-02"

// Asset は assets テーブルの1行
type Asset struct {
	AssetID                 int64
	AssetTag                string
	Name                    string
	Category                string
	Brand                   sql.NullString
	Model                   sql.NullString
	SerialNumber            sql.NullString
	Specification           sql.NullString
	Location                sql.NullString
	Status                  enums.AssetStatus
	Condition               enums.AssetCondition
	CurrentValue            float64
	MaintenanceTicketsCount int
	LastMaintenanceDate     sql.NullTime
	NextMaintenanceDate     sql.NullTime
	RetiredReason           sql.NullString
	Notes                   sql.NullString
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func ptrStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func ptrDate(nt sql.NullTime) *string {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.Format(dateLayout)
	return &v
}

func (a *Asset) Response() AssetResponse {
	return AssetResponse{
		AssetID:                 a.AssetID,
		AssetTag:                a.AssetTag,
		Name:                    a.Name,
		Category:                a.Category,
		Brand:                   ptrStr(a.Brand),
		Model:                   ptrStr(a.Model),
		SerialNumber:            ptrStr(a.SerialNumber),
		Specification:           ptrStr(a.Specification),
		Location:                ptrStr(a.Location),
		Status:                  a.Status,
		StatusLabel:             a.Status.Label(),
		Condition:               a.Condition,
		ConditionLabel:          a.Condition.Label(),
		CurrentValue:            a.CurrentValue,
		MaintenanceTicketsCount: a.MaintenanceTicketsCount,
		LastMaintenanceDate:     ptrDate(a.LastMaintenanceDate),
		NextMaintenanceDate:     ptrDate(a.NextMaintenanceDate),
		RetiredReason:           ptrStr(a.RetiredReason),
		Notes:                   ptrStr(a.Notes),
		CreatedAt:               a.CreatedAt,
		UpdatedAt:               a.UpdatedAt,
	}
}
