package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fentz26/tickos/internal/models"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Show recent task runs and event fires",
	Args:  cobra.NoArgs,
	RunE:  runTrace,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log of control plane mutations",
	Args:  cobra.NoArgs,
	RunE:  runAudit,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List daemon sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var (
	traceKind    string
	traceRef     int
	traceSession string
	traceLimit   int
	auditLimit   int
	sessionLimit int
)

func init() {
	traceCmd.Flags().StringVar(&traceKind, "kind", "", "Filter by kind (task, event)")
	traceCmd.Flags().IntVar(&traceRef, "ref", -1, "Filter by task index or event id")
	traceCmd.Flags().StringVar(&traceSession, "session", "", "Session ID (defaults to the running session)")
	traceCmd.Flags().IntVar(&traceLimit, "limit", 50, "Maximum records to show")

	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum records to show")
	sessionsCmd.Flags().IntVar(&sessionLimit, "limit", 20, "Maximum sessions to show")
}

func runTrace(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(traceLimit))
	if traceKind != "" {
		q.Set("kind", traceKind)
	}
	if traceRef >= 0 {
		q.Set("ref", strconv.Itoa(traceRef))
	}
	if traceSession != "" {
		q.Set("session", traceSession)
	}

	var records []models.Dispatch
	if err := apiGet("/trace?"+q.Encode(), &records); err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No dispatches recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TICK\tKIND\tREF\tNAME\tWHEN")
	for _, d := range records {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", d.Tick, d.Kind, d.Ref, truncate(d.Name, 24), humanize.Time(d.At))
	}
	return w.Flush()
}

func runAudit(cmd *cobra.Command, args []string) error {
	var entries []models.PDREntry
	if err := apiGet("/audit?limit="+strconv.Itoa(auditLimit), &entries); err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTION\tTARGET\tOUTCOME\tWHEN\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(e.ID), e.Action, e.Target, e.Outcome, humanize.Time(e.Timestamp), truncate(e.Details, 40))
	}
	return w.Flush()
}

func runSessions(cmd *cobra.Command, args []string) error {
	var sessions []models.Session
	if err := apiGet("/sessions?limit="+strconv.Itoa(sessionLimit), &sessions); err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFREQ\tSTARTED\tSTOPPED\tFINAL TICK")
	for _, s := range sessions {
		stopped := "running"
		if s.StoppedAt != nil {
			stopped = humanize.Time(*s.StoppedAt)
		}
		fmt.Fprintf(w, "%s\t%dHz\t%s\t%s\t%s\n",
			truncateID(s.ID), s.FreqHz, humanize.Time(s.StartedAt), stopped, humanize.Comma(int64(s.FinalTick)))
	}
	return w.Flush()
}
