package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"roombook/internal/civil"
	"roombook/internal/report"
)

var (
	exportFrom   string
	exportTo     string
	exportRoom   int
	exportAll    bool
	exportOutput string
)

func init() {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export reservations to a spreadsheet",
		Long: `Export reservations to a spreadsheet

Writes one row per reservation between --from and --to (inclusive) to an
.xlsx file, with a per-room summary sheet. Cancelled reservations are left
out unless --all is given.
`,
		Args: cobra.NoArgs,
		RunE: export,
	}

	exportCmd.Flags().StringVar(&exportFrom, "from", "", "First day as YYYY-MM-DD (default today)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Last day as YYYY-MM-DD (default 30 days after --from)")
	exportCmd.Flags().IntVarP(&exportRoom, "room", "r", 0, "Only this room id")
	exportCmd.Flags().BoolVarP(&exportAll, "all", "a", false, "Include cancelled reservations")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "reservations.xlsx", "Output file")

	RootCmd.AddCommand(exportCmd)
}

func export(cmd *cobra.Command, args []string) error {
	from := civil.DateOf(time.Now().In(cfg.Location()))
	var err error
	if exportFrom != "" {
		if from, err = civil.ParseDate(exportFrom); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	to := from.AddDays(30)
	if exportTo != "" {
		if to, err = civil.ParseDate(exportTo); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return err
	}

	exporter := report.NewExporter(newReservationsClient(), logger)
	stats, err := exporter.Export(cmd.Context(), report.Options{
		From:            from,
		To:              to,
		RoomID:          exportRoom,
		IncludeInactive: exportAll,
	}, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(exportOutput)
		return err
	}

	fmt.Printf("%d reservation(s) written to %s\n", stats.Rows, exportOutput)
	if stats.Unreadable > 0 {
		fmt.Printf("%d unreadable record(s) skipped\n", stats.Unreadable)
	}
	return nil
}
