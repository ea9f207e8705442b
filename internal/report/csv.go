package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/shopspring/decimal"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

const (
	priceSuffix = "_price"
	linkSuffix  = "_link"
)

func csvHeader(stores []models.StoreID) []string {
	header := []string{"product"}
	for _, s := range stores {
		header = append(header, string(s)+priceSuffix, string(s)+linkSuffix)
	}
	return append(header, "cheapest_price", "cheapest_store", "cheapest_link")
}

// WriteCSV writes UTF-8 with a BOM so spreadsheet apps detect Arabic text.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}

	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader(t.Stores)); err != nil {
		return err
	}

	for _, row := range t.Rows {
		record := []string{row.Product}
		for _, c := range row.Cells {
			record = append(record, c.PriceText(), c.Result.Link)
		}
		if row.Best != nil {
			record = append(record, row.Best.Price.StringFixed(2), string(row.Best.Store), row.Best.Link)
		} else {
			record = append(record, Unavailable, "", "")
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// Entry is one (product, store) cell read back from a CSV export.
type Entry struct {
	Product string
	Store   models.StoreID
	Price   decimal.NullDecimal
	Link    string
}

// ReadCSV parses a file written by WriteCSV.
func ReadCSV(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	if first3, _ := br.Peek(3); len(first3) == 3 && first3[0] == 0xEF && first3[1] == 0xBB && first3[2] == 0xBF {
		br.Discard(3)
	}

	reader := csv.NewReader(br)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) == 0 || header[0] != "product" {
		return nil, fmt.Errorf("unexpected CSV header %v", header)
	}

	type storeCols struct {
		store      models.StoreID
		price, lnk int
	}
	var cols []storeCols
	for i, h := range header {
		if !strings.HasSuffix(h, priceSuffix) || h == "cheapest_price" {
			continue
		}
		store := strings.TrimSuffix(h, priceSuffix)
		if i+1 >= len(header) || header[i+1] != store+linkSuffix {
			return nil, fmt.Errorf("column %q has no matching link column", h)
		}
		cols = append(cols, storeCols{store: models.StoreID(store), price: i, lnk: i + 1})
	}

	var entries []Entry
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		for _, c := range cols {
			e := Entry{Product: record[0], Store: c.store, Link: record[c.lnk]}
			if text := record[c.price]; text != Unavailable && text != "" {
				p, err := decimal.NewFromString(text)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid price %q: %w", line, text, err)
				}
				e.Price = decimal.NewNullDecimal(p)
			}
			entries = append(entries, e)
		}
	}

	return entries, nil
}
