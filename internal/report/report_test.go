package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"roombook/internal/civil"
	"roombook/internal/reservas"
)

type listerFunc func(ctx context.Context) ([]reservas.Reservation, error)

func (f listerFunc) List(ctx context.Context) ([]reservas.Reservation, error) { return f(ctx) }

func fixed(list ...reservas.Reservation) Lister {
	return listerFunc(func(context.Context) ([]reservas.Reservation, error) { return list, nil })
}

func resv(id int64, room int, name, date, start, end, status string) reservas.Reservation {
	return reservas.Reservation{ID: id, RoomID: room, RoomName: name, Date: date, StartTime: start, EndTime: end, Status: status, Description: "Meeting"}
}

func mustDate(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestExport(t *testing.T) {
	src := fixed(
		resv(1, 2, "Sala Jatobá", "2024-05-03", "10:00", "10:30", "ativa"),
		resv(2, 1, "Sala Ipê", "2024-05-02T00:00:00", "2024-05-02T14:00:00", "2024-05-02T14:30:00", "ativa"),
		resv(3, 1, "Sala Ipê", "2024-05-02", "08:00", "08:30", "ativa"),
		resv(4, 1, "Sala Ipê", "2024-05-02", "09:00", "09:30", "cancelada"),
		resv(5, 1, "Sala Ipê", "2024-05-09", "09:00", "09:30", "ativa"),
		resv(6, 1, "Sala Ipê", "2024-05-02", "nove", "dez", "ativa"),
	)
	e := NewExporter(src, zerolog.New(io.Discard))

	var buf bytes.Buffer
	stats, err := e.Export(context.Background(), Options{From: mustDate("2024-05-02"), To: mustDate("2024-05-03")}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 1, stats.Unreadable)
	assert.Equal(t, map[string]int{"Sala Ipê": 2, "Sala Jatobá": 1}, stats.PerRoom)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Reservations")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, []string{"3", "2024-05-02", "08:00", "08:30", "Sala Ipê"}, rows[1][:5])
	assert.Equal(t, []string{"2", "2024-05-02", "14:00", "14:30", "Sala Ipê"}, rows[2][:5])
	assert.Equal(t, "1", rows[3][0])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Room", "Reservations"}, {"Sala Ipê", "2"}, {"Sala Jatobá", "1"}, {"Total", "3"}}, summary)
}

func TestExportFilters(t *testing.T) {
	src := fixed(
		resv(1, 1, "", "2024-05-02", "08:00", "08:30", "ativa"),
		resv(2, 2, "", "2024-05-02", "08:00", "08:30", "cancelada"),
	)
	e := NewExporter(src, zerolog.New(io.Discard))
	day := mustDate("2024-05-02")

	stats, err := e.Export(context.Background(), Options{From: day, To: day, RoomID: 2, IncludeInactive: true}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Room 2": 1}, stats.PerRoom)

	_, err = e.Export(context.Background(), Options{From: day, To: day.AddDays(-1)}, io.Discard)
	assert.Error(t, err)

	failing := NewExporter(listerFunc(func(context.Context) ([]reservas.Reservation, error) {
		return nil, errors.New("backend down")
	}), zerolog.New(io.Discard))
	_, err = failing.Export(context.Background(), Options{From: day, To: day}, io.Discard)
	assert.ErrorContains(t, err, "backend down")
}
