package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"roombook/internal/outbox"
)

var (
	failuresLimit int
	failuresJSON  bool
)

func init() {
	failuresCmd := &cobra.Command{
		Use:   "failures",
		Short: "List recent calendar sync failures",
		Long: `List recent calendar sync failures

Reads the failure log written by the calendar outbox, newest first.
`,
		Args: cobra.NoArgs,
		RunE: listFailures,
	}

	failuresCmd.Flags().IntVarP(&failuresLimit, "limit", "n", 20, "Maximum rows")
	failuresCmd.Flags().BoolVarP(&failuresJSON, "json", "j", false, "JSON output")

	RootCmd.AddCommand(failuresCmd)
}

func listFailures(cmd *cobra.Command, args []string) error {
	log, err := outbox.OpenFailureLog(cfg.FailureLogPath())
	if err != nil {
		return err
	}
	defer log.Close()

	list, err := log.Recent(cmd.Context(), failuresLimit)
	if err != nil {
		return err
	}
	if failuresJSON {
		return json.NewEncoder(os.Stdout).Encode(list)
	}
	if len(list) == 0 {
		fmt.Println("no failures recorded")
		return nil
	}

	out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer out.Flush()
	fmt.Fprintf(out, "WHEN\tKIND\tRESERVATION\tROOM\tSLOT\tERROR\n")
	for _, f := range list {
		fmt.Fprintf(out, "%s\t%s\t%d\t%d\t%s %s\t%s\n",
			f.OccurredAt.In(cfg.Location()).Format("2006-01-02 15:04:05"),
			f.Kind, f.ReservationID, f.RoomID, f.Date, f.StartTime, f.Error)
	}
	return nil
}
