package exports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"ICTSERVE-backend/internal/asset_mgmt/loans"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const sheetName = "Loan Applications"

var header = []string{
	"Application Number", "Status", "Priority", "Applicant Name", "Applicant Email", "Applicant Phone",
	"Division", "Purpose", "Location", "Loan Start", "Loan End", "Approved At", "Approved By",
	"Total Value", "Maintenance Required", "Submitted At",
}

func record(a *loans.Application, loc *time.Location) []string {
	approvedAt := ""
	if a.ApprovedAt.Valid {
		approvedAt = a.ApprovedAt.Time.In(loc).Format("2006-01-02 15:04")
	}
	return []string{
		a.ApplicationNumber,
		a.Status.Label(),
		a.Priority.Label(),
		a.ApplicantName,
		a.ApplicantEmail,
		a.ApplicantPhone,
		a.Division.String,
		a.Purpose,
		a.Location,
		a.LoanStartDate.Format("2006-01-02"),
		a.LoanEndDate.Format("2006-01-02"),
		approvedAt,
		a.ApprovedByName.String,
		strconv.FormatFloat(a.TotalValue, 'f', 2, 64),
		strconv.FormatBool(a.MaintenanceRequired),
		a.CreatedAt.In(loc).Format("2006-01-02 15:04"),
	}
}

// WriteCSV は表計算ソフト向けに BOM 付き UTF-8 で書き出す
func WriteCSV(w io.Writer, apps []loans.Application, loc *time.Location) error {
	enc := unicode.UTF8BOM.NewEncoder()
	tw := transform.NewWriter(w, enc)
	cw := csv.NewWriter(tw)

	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range apps {
		if err := cw.Write(record(&apps[i], loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return tw.Close()
}

func WriteXLSX(w io.Writer, apps []loans.Application, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}
	if err := sw.SetColWidth(1, len(header), 20); err != nil {
		return err
	}

	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := sw.SetRow("A1", row, excelize.RowOpts{StyleID: bold}); err != nil {
		return err
	}
	for i := range apps {
		rec := record(&apps[i], loc)
		cells := make([]any, len(rec))
		for j, v := range rec {
			cells[j] = v
		}
		// 金額は数値セルにする
		cells[13] = apps[i].TotalValue
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
