package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"roombook/internal/civil"
)

var (
	availRoom int
	availDate string
	availJSON bool
)

func init() {
	availabilityCmd := &cobra.Command{
		Use:     "availability",
		Aliases: []string{"avail"},
		Short:   "Show a room's slots for a day",
		Long: `Show a room's slots for a day

Fetches the reservation collection and prints every slot of the room with
its state. Without --room the per-room summary is printed instead.
`,
		Args: cobra.NoArgs,
		RunE: showAvailability,
	}

	availabilityCmd.Flags().IntVarP(&availRoom, "room", "r", 0, "Room id")
	availabilityCmd.Flags().StringVarP(&availDate, "date", "d", "", "Day as YYYY-MM-DD (default today)")
	availabilityCmd.Flags().BoolVarP(&availJSON, "json", "j", false, "JSON output")

	RootCmd.AddCommand(availabilityCmd)
}

func showAvailability(cmd *cobra.Command, args []string) error {
	resolver, err := newResolver()
	if err != nil {
		return err
	}
	roomsCat, err := loadRooms()
	if err != nil {
		return err
	}

	now := time.Now()
	date := civil.DateOf(now.In(resolver.Location()))
	if availDate != "" {
		if date, err = civil.ParseDate(availDate); err != nil {
			return err
		}
	}

	snapshot, err := newReservationsClient().List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}

	out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer out.Flush()

	if availRoom == 0 {
		summaries := resolver.SummarizeRooms(snapshot, roomsCat.All(), date, now)
		if availJSON {
			return json.NewEncoder(os.Stdout).Encode(summaries)
		}
		fmt.Fprintf(out, "ROOM\tFREE\tTAKEN\tTOTAL\tLIGHT\n")
		for _, s := range summaries {
			fmt.Fprintf(out, "%s\t%d\t%d\t%d\t%s\n", s.Room.Name, s.Summary.Available, s.Summary.Occupied, s.Summary.Total, s.Light)
		}
		return nil
	}

	room, err := roomsCat.Get(availRoom)
	if err != nil {
		return fmt.Errorf("room %d: %w", availRoom, err)
	}
	res := resolver.Resolve(snapshot, room.ID, date, now)
	if availJSON {
		return json.NewEncoder(os.Stdout).Encode(res)
	}

	fmt.Fprintf(out, "%s  %s  %d/%d free\n\n", room.Name, date, res.Summary.Available, res.Summary.Total)
	fmt.Fprintf(out, "SLOT\tTIME\tSTATE\tRESERVATION\n")
	for _, s := range res.Slots {
		ref := ""
		if s.ReservationID != 0 {
			ref = fmt.Sprint(s.ReservationID)
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", s.Slot.ID, s.Slot, s.State, ref)
	}
	if res.Unparsed > 0 {
		fmt.Fprintf(out, "\n%d unreadable reservation(s) block the day\n", res.Unparsed)
	}
	return nil
}
