package echoapi

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/tmdent/clinlog/core/progress"
	"github.com/tmdent/clinlog/core/user"
)

var progressExportHeader = []string{
	"Requirement",
	"CDA Name",
	"Min RSU",
	"Current RSU",
	"Pending RSU",
	"RSU Unit",
	"Min CDA",
	"Current CDA",
	"Pending CDA",
	"CDA Unit",
	"Exam",
	"Method",
	"RSU Calculation",
	"CDA Calculation",
}

// buildProgressWorkbook renders a progress report as one worksheet per
// division, in the same order the report came in.
func buildProgressWorkbook(student user.User, reports []progress.DivisionReport) (*excelize.File, error) {
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "creating header style")
	}

	for i, report := range reports {
		sheet := sheetName(report.DivisionName)
		if i == 0 {
			f.SetSheetName("Sheet1", sheet) // NewFile always starts with Sheet1
		} else {
			f.NewSheet(sheet)
		}
		if err = writeDivisionSheet(f, sheet, headerStyle, student, report); err != nil {
			return nil, errors.Wrapf(err, "writing sheet %s", sheet)
		}
	}
	return f, nil
}

func writeDivisionSheet(f *excelize.File, sheet string, headerStyle int, student user.User, report progress.DivisionReport) error {
	_ = f.SetCellValue(sheet, "A1", report.DivisionName)
	_ = f.SetCellValue(sheet, "C1", student.Name)
	_ = f.SetCellValue(sheet, "A2", "RSU Completion %")
	_ = f.SetCellValue(sheet, "B2", report.RSUCompletionPct)
	_ = f.SetCellValue(sheet, "C2", "CDA Completion %")
	_ = f.SetCellValue(sheet, "D2", report.CDACompletionPct)

	const headerRow = 4
	for col, title := range progressExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, headerRow)
		if err != nil {
			return err
		}
		if err = f.SetCellValue(sheet, cell, title); err != nil {
			return err
		}
	}

	for i, rp := range report.Requirements {
		row := headerRow + 1 + i
		exam := ""
		if rp.IsExam {
			exam = "yes"
		}
		values := []interface{}{
			rp.Name,
			rp.CDAName,
			rp.MinimumRSU,
			rp.CurrentRSU,
			rp.PendingRSU,
			rp.RSUUnit,
			rp.MinimumCDA,
			rp.CurrentCDA,
			rp.PendingCDA,
			rp.CDAUnit,
			exam,
			rp.CalcMethod,
			rp.RSUCalcHint,
			rp.CDACalcHint,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err = f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	lastHeaderCell, err := excelize.CoordinatesToCellName(len(progressExportHeader), headerRow)
	if err != nil {
		return err
	}
	if err = f.SetCellStyle(sheet, "A1", "A1", headerStyle); err != nil {
		return err
	}
	if err = f.SetCellStyle(sheet, "A4", lastHeaderCell, headerStyle); err != nil {
		return err
	}
	_ = f.SetColWidth(sheet, "A", "B", 36)
	_ = f.SetColWidth(sheet, "M", "N", 44)
	return nil
}

// sheetName makes a division name safe for use as a worksheet name.
func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return ' '
		}
		return r
	}, name)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
