package enums

import "database/sql/driver"

type AssetStatus string

const (
	AssetAvailable   AssetStatus = "available"
	AssetLoaned      AssetStatus = "loaned"
	AssetMaintenance AssetStatus = "maintenance"
	AssetRetired     AssetStatus = "retired"
	AssetDamaged     AssetStatus = "damaged"
)

var assetStatusDef = def[AssetStatus]{
	name:   "asset status",
	values: []AssetStatus{AssetAvailable, AssetLoaned, AssetMaintenance, AssetRetired, AssetDamaged},
	meta: map[AssetStatus]meta{
		AssetAvailable:   {"Available", "green"},
		AssetLoaned:      {"On Loan", "blue"},
		AssetMaintenance: {"Under Maintenance", "orange"},
		AssetRetired:     {"Retired", "gray"},
		AssetDamaged:     {"Damaged", "red"},
	},
}

func AllAssetStatuses() []AssetStatus { return assetStatusDef.all() }

func ParseAssetStatus(s string) (AssetStatus, error) { return assetStatusDef.parse(s) }

func (s AssetStatus) String() string  { return string(s) }
func (s AssetStatus) Valid() bool     { return assetStatusDef.valid(s) }
func (s AssetStatus) Label() string   { return assetStatusDef.label(s) }
func (s AssetStatus) Color() string   { return assetStatusDef.color(s) }
func (s AssetStatus) SortOrder() int  { return assetStatusDef.order(s) }

func (s AssetStatus) CanBeLoaned() bool { return s == AssetAvailable }

func (s *AssetStatus) Scan(src any) error           { return assetStatusDef.scan(s, src) }
func (s AssetStatus) Value() (driver.Value, error)  { return assetStatusDef.value(s) }
func (s *AssetStatus) UnmarshalJSON(b []byte) error { return assetStatusDef.unmarshal(s, b) }

type AssetCondition string

const (
	ConditionExcellent AssetCondition = "excellent"
	ConditionGood      AssetCondition = "good"
	ConditionFair      AssetCondition = "fair"
	ConditionPoor      AssetCondition = "poor"
	ConditionDamaged   AssetCondition = "damaged"
)

var assetConditionDef = def[AssetCondition]{
	name:   "asset condition",
	values: []AssetCondition{ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor, ConditionDamaged},
	meta: map[AssetCondition]meta{
		ConditionExcellent: {"Excellent", "green"},
		ConditionGood:      {"Good", "teal"},
		ConditionFair:      {"Fair", "yellow"},
		ConditionPoor:      {"Poor", "orange"},
		ConditionDamaged:   {"Damaged", "red"},
	},
}

func AllAssetConditions() []AssetCondition { return assetConditionDef.all() }

func ParseAssetCondition(s string) (AssetCondition, error) { return assetConditionDef.parse(s) }

func (c AssetCondition) String() string  { return string(c) }
func (c AssetCondition) Valid() bool     { return assetConditionDef.valid(c) }
func (c AssetCondition) Label() string   { return assetConditionDef.label(c) }
func (c AssetCondition) Color() string   { return assetConditionDef.color(c) }
func (c AssetCondition) SortOrder() int  { return assetConditionDef.order(c) }

// RequiresMaintenance: poor / damaged はメンテナンス票を起票する
func (c AssetCondition) RequiresMaintenance() bool {
	return c == ConditionPoor || c == ConditionDamaged
}

// Rank: 1(excellent) .. 5(damaged)。未知の値は 0。
func (c AssetCondition) Rank() int { return assetConditionDef.order(c) }

func (c AssetCondition) IsWorseThan(other AssetCondition) bool {
	return c.Rank() > other.Rank()
}

func (c *AssetCondition) Scan(src any) error           { return assetConditionDef.scan(c, src) }
func (c AssetCondition) Value() (driver.Value, error)  { return assetConditionDef.value(c) }
func (c *AssetCondition) UnmarshalJSON(b []byte) error { return assetConditionDef.unmarshal(c, b) }
