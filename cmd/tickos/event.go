package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fentz26/tickos/internal/scheduler"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Manage latched events",
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered events",
	Args:  cobra.NoArgs,
	RunE:  runEventList,
}

func init() {
	eventCmd.AddCommand(eventListCmd)
	eventCmd.AddCommand(
		eventVerbCmd("trigger", "Latch an event; it fires once on the next pass"),
		eventVerbCmd("suspend", "Suspend an event; triggers stay latched"),
		eventVerbCmd("resume", "Resume a suspended event"),
		eventVerbCmd("delete", "Delete an event"),
	)
}

func eventVerbCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("event", args[0])
			if err != nil {
				return err
			}
			if err := apiPost(fmt.Sprintf("/events/%d/%s", id, verb), nil); err != nil {
				return err
			}
			fmt.Printf("Event %d: %s ok\n", id, verb)
			return nil
		},
	}
}

func runEventList(cmd *cobra.Command, args []string) error {
	var events []scheduler.EventInfo
	if err := apiGet("/events", &events); err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tTRIGGERED\tFIRES")
	for _, ev := range events {
		fmt.Fprintf(w, "%d\t%s\t%t\t%t\t%s\n",
			ev.ID, truncate(ev.Name, 24), ev.Enabled, ev.Triggered, humanize.Comma(int64(ev.Fires)))
	}
	return w.Flush()
}
