package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/temporade/chronicle-api/internal/models"
	appErrors "github.com/temporade/chronicle-api/pkg/errors"
	"github.com/temporade/chronicle-api/pkg/export"
)

// ExportService renders a calendar's expanded agenda as CSV or PDF.
type ExportService struct {
	planner *OccurrenceService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewExportService constructs the export service.
func NewExportService(planner *OccurrenceService) *ExportService {
	return &ExportService{
		planner: planner,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
	}
}

var agendaHeaders = []string{"Date", "Start", "End", "Title", "Location", "All Day"}

// AgendaCSV renders the occurrences of [rangeStart, rangeEnd) as CSV.
func (s *ExportService) AgendaCSV(ctx context.Context, calendarID string, rangeStart, rangeEnd time.Time) ([]byte, error) {
	data, err := s.agendaDataset(ctx, calendarID, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	payload, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "csv render failed")
	}
	return payload, nil
}

// AgendaPDF renders the occurrences of [rangeStart, rangeEnd) as PDF.
func (s *ExportService) AgendaPDF(ctx context.Context, calendarID string, rangeStart, rangeEnd time.Time) ([]byte, error) {
	data, err := s.agendaDataset(ctx, calendarID, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("Agenda %s to %s", rangeStart.Format(models.DateLayout), rangeEnd.Format(models.DateLayout))
	payload, err := s.pdf.Render(data, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "pdf render failed")
	}
	return payload, nil
}

func (s *ExportService) agendaDataset(ctx context.Context, calendarID string, rangeStart, rangeEnd time.Time) (export.Dataset, error) {
	occurrences, err := s.planner.ListOccurrences(ctx, calendarID, rangeStart, rangeEnd, DefaultListOptions())
	if err != nil {
		return export.Dataset{}, err
	}

	rows := make([]map[string]string, 0, len(occurrences))
	for _, occ := range occurrences {
		rows = append(rows, map[string]string{
			"Date":     occ.InstanceDate.Format(models.DateLayout),
			"Start":    occ.Start.Format("15:04"),
			"End":      occ.End.Format("15:04"),
			"Title":    occ.Title,
			"Location": occ.Location,
			"All Day":  strconv.FormatBool(occ.AllDay),
		})
	}
	return export.Dataset{Headers: agendaHeaders, Rows: rows}, nil
}
