package tickets

import (
	"time"

	"ICTSERVE-backend/internal/enums"
	"ICTSERVE-backend/internal/helpdesk/categories"

	"github.com/rickar/cal/v2"
)

// SLA は分類の時間 × 優先度倍率から期限を出す。
// businessHours が有効なら営業時間（平日・祝日除く）で加算する。
type SLA struct {
	businessHours bool
	loc           *time.Location
	cal           *cal.BusinessCalendar
}

type SLAOption func(*SLA)

// WithBusinessHours: start/end は 0時からのオフセット（例 8h, 17h）
func WithBusinessHours(start, end time.Duration, holidays ...*cal.Holiday) SLAOption {
	return func(s *SLA) {
		c := cal.NewBusinessCalendar()
		c.SetWorkHours(start, end)
		c.AddHoliday(holidays...)
		s.cal = c
		s.businessHours = true
	}
}

func NewSLA(loc *time.Location, opts ...SLAOption) *SLA {
	if loc == nil {
		loc = time.UTC
	}
	s := &SLA{loc: loc}
	for _, o := range opts {
		o(s)
	}
	return s
}

// 固定日付の祝日（国の祝日パッケージが無いので必要分だけ）
var (
	NationalDay = &cal.Holiday{Name: "Hari Kebangsaan", Type: cal.ObservancePublic, Month: time.August, Day: 31, Func: cal.CalcDayOfMonth}
	MalaysiaDay = &cal.Holiday{Name: "Hari Malaysia", Type: cal.ObservancePublic, Month: time.September, Day: 16, Func: cal.CalcDayOfMonth}
	LabourDay   = &cal.Holiday{Name: "Hari Pekerja", Type: cal.ObservancePublic, Month: time.May, Day: 1, Func: cal.CalcDayOfMonth}
	NewYear     = &cal.Holiday{Name: "New Year", Type: cal.ObservancePublic, Month: time.January, Day: 1, Func: cal.CalcDayOfMonth}
)

func scaled(hours int, p enums.TicketPriority) time.Duration {
	return time.Duration(float64(hours) * p.SLAMultiplier() * float64(time.Hour))
}

func (s *SLA) add(from time.Time, d time.Duration) time.Time {
	if !s.businessHours {
		return from.Add(d).UTC()
	}
	return s.cal.AddWorkHours(from.In(s.loc), d).UTC()
}

// Due は (応答期限, 解決期限) を返す
func (s *SLA) Due(created time.Time, c *categories.Category, p enums.TicketPriority) (time.Time, time.Time) {
	return s.add(created, scaled(c.SLAResponseHours, p)), s.add(created, scaled(c.SLAResolutionHours, p))
}
