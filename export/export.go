package export

import (
	"commitment-wall/models"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// DefaultPrefix names exported files.
const DefaultPrefix = "Simply_Complex_Africa_Pledges"

// ContentType is sent with downloads.
const ContentType = "text/csv; charset=utf-8"

// bom lets spreadsheet tools detect UTF-8.
const bom = "\uFEFF"

// ErrNoPledges is returned when there is nothing to export.
var ErrNoPledges = errors.New("no pledges to export yet")

// Header is the fixed column order.
var Header = []string{
	"No", "Name", "Company", "Email", "Message", "Category",
	"AI Category", "AI Sentiment", "AI Impact Score", "Date", "Timestamp",
}

// FileName returns <prefix>_<YYYY-MM-DD>.csv for the UTC date of now.
func FileName(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s_%s.csv", prefix, now.UTC().Format(time.DateOnly))
}

// WriteCSV writes the BOM, the header and one row per pledge. Nothing is
// written when pledges is empty.
func WriteCSV(w io.Writer, pledges []models.Pledge) error {
	if len(pledges) == 0 {
		return ErrNoPledges
	}

	if _, err := io.WriteString(w, bom); err != nil {
		return fmt.Errorf("failed to write byte-order mark: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, p := range pledges {
		if err := cw.Write(row(i, p)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func row(i int, p models.Pledge) []string {
	return []string{
		strconv.Itoa(i + 1),
		p.Name,
		p.Company,
		p.Email,
		p.Message,
		string(p.Category),
		p.AICategory,
		p.AISentiment,
		p.AIImpactScore,
		p.Date,
		p.Timestamp,
	}
}
