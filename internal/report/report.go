// Package report exports reservations to spreadsheets.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"

	"roombook/internal/civil"
	"roombook/internal/reservas"
)

// Lister fetches the reservation collection.
type Lister interface {
	List(ctx context.Context) ([]reservas.Reservation, error)
}

// Options filter an export.
type Options struct {
	From, To        civil.Date
	RoomID          int
	IncludeInactive bool
}

// Stats counts what an export wrote.
type Stats struct {
	Rows       int
	Unreadable int
	PerRoom    map[string]int
}

var columns = []string{"ID", "Date", "Start", "End", "Room", "Title", "Department", "Responsible", "Status", "Created by", "Calendar event"}

var widths = []float64{8, 12, 8, 8, 20, 32, 20, 24, 12, 28, 20}

type row struct {
	iv reservas.Interval
	r  reservas.Reservation
}

// Exporter writes reservations of a date range to an .xlsx workbook.
type Exporter struct {
	source Lister
	logger zerolog.Logger
}

func NewExporter(source Lister, logger zerolog.Logger) *Exporter {
	return &Exporter{source: source, logger: logger.With().Str("component", "report").Logger()}
}

// Export writes one row per reservation whose date is within [From, To],
// sorted by date, start and room, plus a per-room summary sheet.
// Records with unreadable dates or times are skipped and counted.
func (e *Exporter) Export(ctx context.Context, opts Options, out io.Writer) (*Stats, error) {
	if opts.To.Before(opts.From) {
		return nil, fmt.Errorf("empty range %s..%s", opts.From, opts.To)
	}
	all, err := e.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	stats := &Stats{PerRoom: make(map[string]int)}
	var rows []row
	for _, r := range all {
		if opts.RoomID != 0 && r.RoomID != opts.RoomID {
			continue
		}
		if !opts.IncludeInactive && !r.IsActive() {
			continue
		}
		iv, err := r.Interval()
		if err != nil {
			stats.Unreadable++
			e.logger.Debug().Err(err).Int64("id", r.ID).Msg("skipping unreadable reservation")
			continue
		}
		if iv.Date.Before(opts.From) || iv.Date.After(opts.To) {
			continue
		}
		rows = append(rows, row{iv: iv, r: r})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.iv.Date != b.iv.Date {
			return a.iv.Date.Before(b.iv.Date)
		}
		if a.iv.Start != b.iv.Start {
			return a.iv.Start.Before(b.iv.Start)
		}
		return a.r.RoomID < b.r.RoomID
	})

	w := newSheetWriter()
	defer w.close()

	if err := w.addSheet("Reservations"); err != nil {
		return nil, err
	}
	if err := w.header(columns, widths); err != nil {
		return nil, err
	}
	for _, x := range rows {
		room := roomLabel(x.r)
		if err := w.write([]any{
			x.r.ID,
			x.iv.Date.String(),
			x.iv.Start.String(),
			x.iv.End.String(),
			room,
			x.r.Description,
			x.r.Department,
			x.r.Responsible,
			x.r.Status,
			x.r.CreatedBy,
			x.r.EventID(),
		}); err != nil {
			return nil, err
		}
		stats.Rows++
		stats.PerRoom[room]++
	}

	if err := w.addSheet("Summary"); err != nil {
		return nil, err
	}
	if err := w.header([]string{"Room", "Reservations"}, []float64{24, 14}); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(stats.PerRoom))
	for name := range stats.PerRoom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.write([]any{name, stats.PerRoom[name]}); err != nil {
			return nil, err
		}
	}
	if err := w.write([]any{"Total", stats.Rows}); err != nil {
		return nil, err
	}

	if err := w.save(out); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	e.logger.Info().
		Str("from", opts.From.String()).
		Str("to", opts.To.String()).
		Int("rows", stats.Rows).
		Int("unreadable", stats.Unreadable).
		Msg("reservations exported")
	return stats, nil
}

func roomLabel(r reservas.Reservation) string {
	if r.RoomName != "" {
		return r.RoomName
	}
	return fmt.Sprintf("Room %d", r.RoomID)
}
