package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/medscan/internal/entity"
)

// ProfileReader is the slice of the user service the export needs.
type ProfileReader interface {
	Profile(ctx context.Context, email string) (*entity.Profile, error)
}

// Service produces XLSX bytes for activity exports.
type Service struct {
	profiles ProfileReader
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(profiles ProfileReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{profiles: profiles, now: time.Now, logger: logger}
}

const (
	activitySheet = "Activities"
	summarySheet  = "Summary"
)

// ExportActivitiesXLSX returns a workbook with the user's history (newest first)
// and a summary of the usage counters.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> the whole history.
func (s *Service) ExportActivitiesXLSX(ctx context.Context, email string, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var fromDate, toDate *time.Time
	if from != nil {
		f := dateOnly(*from)
		fromDate = &f
	}
	if to != nil {
		t := dateOnly(*to)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		t := dateOnly(s.now())
		toDate = &t
	}

	p, err := s.profiles.Profile(ctx, email)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", activitySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	headers := []string{"Date", "Time (UTC)", "Activity"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(activitySheet, cell, h)
	}

	row := 2
	for _, a := range p.Activities {
		day := dateOnly(a.Date)
		if fromDate != nil && day.Before(*fromDate) {
			continue
		}
		if toDate != nil && day.After(*toDate) {
			continue
		}
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(activitySheet, cell, v)
		}
		write(1, a.Date.UTC().Format("2006-01-02"))
		write(2, a.Date.UTC().Format("15:04:05"))
		write(3, a.Action)
		row++
	}

	summary := [][]any{
		{"Email", p.Email},
		{"Name", p.Name},
		{"Lab reports", p.Reports},
		{"Medicine scans", p.Scans},
		{"AI queries", p.Queries},
	}
	for i, kv := range summary {
		_ = f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &kv)
	}

	_ = f.SetColWidth(activitySheet, "A", "B", 14)
	_ = f.SetColWidth(activitySheet, "C", "C", 28)
	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 32)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user", email,
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
