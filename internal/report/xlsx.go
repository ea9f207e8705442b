package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	pricesSheet  = "Prices"
	groupsSheet  = "By store"
	riyalNumFmt  = `#,##0.00 "ر.س"`
	linkColWidth = 40
)

// WriteXLSX writes a right-to-left workbook with the price table and the
// per-store grouping. Prices are numeric cells in a riyal format.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", pricesSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(groupsSheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	numFmt := riyalNumFmt
	priceStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("failed to create price style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writePricesSheet(f, t, priceStyle, headerStyle); err != nil {
		return err
	}
	if err := writeGroupsSheet(f, GroupByCheapestStore(t), priceStyle, headerStyle); err != nil {
		return err
	}

	rtl := true
	for _, sheet := range []string{pricesSheet, groupsSheet} {
		if err := f.SetSheetView(sheet, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
			return fmt.Errorf("failed to set sheet view: %w", err)
		}
	}

	return f.Write(w)
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (s *sheetWriter) set(col, row int, value interface{}, style int) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		s.err = err
		return
	}
	if err := s.f.SetCellValue(s.sheet, cell, value); err != nil {
		s.err = err
		return
	}
	if style != 0 {
		s.err = s.f.SetCellStyle(s.sheet, cell, cell, style)
	}
}

// price writes a numeric cell, or the unavailable marker.
func (s *sheetWriter) price(col, row int, c Cell, style int) {
	if !c.Result.Available() {
		s.set(col, row, Unavailable, 0)
		return
	}
	s.set(col, row, c.Result.Price.Decimal.InexactFloat64(), style)
}

func writePricesSheet(f *excelize.File, t Table, priceStyle, headerStyle int) error {
	sw := &sheetWriter{f: f, sheet: pricesSheet}

	for i, h := range csvHeader(t.Stores) {
		sw.set(i+1, 1, h, headerStyle)
	}

	for r, row := range t.Rows {
		line := r + 2
		col := 1
		sw.set(col, line, row.Product, 0)
		for _, c := range row.Cells {
			sw.price(col+1, line, c, priceStyle)
			sw.set(col+2, line, c.Result.Link, 0)
			col += 2
		}
		if row.Best != nil {
			sw.set(col+1, line, row.Best.Price.InexactFloat64(), priceStyle)
			sw.set(col+2, line, string(row.Best.Store), 0)
			sw.set(col+3, line, row.Best.Link, 0)
		} else {
			sw.set(col+1, line, Unavailable, 0)
		}
	}
	if sw.err != nil {
		return fmt.Errorf("failed to write %s sheet: %w", pricesSheet, sw.err)
	}

	last, err := excelize.ColumnNumberToName(len(csvHeader(t.Stores)))
	if err != nil {
		return err
	}
	return f.SetColWidth(pricesSheet, "A", last, 18)
}

func writeGroupsSheet(f *excelize.File, g Grouping, priceStyle, headerStyle int) error {
	sw := &sheetWriter{f: f, sheet: groupsSheet}

	for i, h := range []string{"store", "product", "price", "link"} {
		sw.set(i+1, 1, h, headerStyle)
	}

	line := 2
	for _, group := range g.Groups {
		for _, item := range group.Items {
			sw.set(1, line, string(group.Store), 0)
			sw.set(2, line, item.Product, 0)
			sw.set(3, line, item.Price.InexactFloat64(), priceStyle)
			sw.set(4, line, item.Link, 0)
			line++
		}
		sw.set(1, line, string(group.Store), headerStyle)
		sw.set(2, line, "total", headerStyle)
		sw.set(3, line, group.Total.InexactFloat64(), priceStyle)
		line++
	}
	for _, product := range g.Unavailable {
		sw.set(2, line, product, 0)
		sw.set(3, line, Unavailable, 0)
		line++
	}
	if sw.err != nil {
		return fmt.Errorf("failed to write %s sheet: %w", groupsSheet, sw.err)
	}

	return f.SetColWidth(groupsSheet, "D", "D", linkColWidth)
}
