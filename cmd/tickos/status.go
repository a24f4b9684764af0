package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fentz26/tickos/internal/actions"
	"github.com/fentz26/tickos/internal/controlplane"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and scheduler status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusActions bool

func init() {
	statusCmd.Flags().BoolVar(&statusActions, "actions", false, "Also list configured actions and their counters")
}

func runStatus(cmd *cobra.Command, args []string) error {
	health, err := CheckHealth(apiClient)
	if err != nil && health == nil {
		return err
	}

	var st controlplane.StatusReport
	if err := apiGet("/status", &st); err != nil {
		return err
	}

	sc := st.Scheduler
	fmt.Printf("Daemon:     tickos %s (db %s)\n", health.Version, health.DB)
	if st.SessionID != "" {
		fmt.Printf("Session:    %s\n", st.SessionID)
	}
	fmt.Printf("Uptime:     %s\n", st.Uptime)
	fmt.Printf("Tick:       %s @ %d Hz (%s ms)\n",
		humanize.Comma(int64(sc.Tick)), st.FreqHz, humanize.Comma(int64(st.TickMs)))
	fmt.Printf("Tasks:      %d / %d\n", sc.TaskCount, sc.TaskCapacity)
	fmt.Printf("Events:     %d / %d\n", sc.EventCount, sc.EventCapacity)
	fmt.Printf("Delays:     %d / %d\n", sc.DelayCount, sc.DelayCapacity)
	fmt.Printf("Tick src:   %s delivered, %s skipped\n",
		humanize.Comma(int64(st.TicksDelivered)), humanize.Comma(int64(st.TicksSkipped)))
	fmt.Printf("Trace:      %s written, %s dropped\n",
		humanize.Comma(int64(st.TraceWritten)), humanize.Comma(int64(st.TraceDropped)))

	if !statusActions {
		return nil
	}

	var states []actions.StateInfo
	if err := apiGet("/actions", &states); err != nil {
		return err
	}
	fmt.Println()
	if len(states) == 0 {
		fmt.Println("No actions configured")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OWNER\tNAME\tKIND\tRUNS\tERRORS\tON")
	for _, a := range states {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			a.Owner, truncate(a.Name, 24), a.Kind, humanize.Comma(int64(a.Runs)), humanize.Comma(int64(a.Errors)), a.On)
	}
	return w.Flush()
}
