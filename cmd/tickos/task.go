package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fentz26/tickos/internal/controlplane"
	"github.com/fentz26/tickos/internal/scheduler"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage periodic tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [index]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskSleepCmd = &cobra.Command{
	Use:   "sleep [index] [ms]",
	Short: "Make a task ineligible for a number of milliseconds",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskSleep,
}

func init() {
	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskSleepCmd)
	taskCmd.AddCommand(
		taskVerbCmd("suspend", "Suspend a task; it stays installed but is skipped"),
		taskVerbCmd("resume", "Resume a suspended task"),
		taskVerbCmd("wake", "End a task's sleep early"),
		taskVerbCmd("reset", "Restart a task's period from now"),
		taskVerbCmd("delete", "Delete a task and free its slot"),
	)
}

// taskVerbCmd builds a subcommand that POSTs /tasks/{index}/{verb}.
func taskVerbCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [index]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			if err := apiPost(fmt.Sprintf("/tasks/%d/%s", index, verb), nil); err != nil {
				return err
			}
			fmt.Printf("Task %d: %s ok\n", index, verb)
			return nil
		},
	}
}

func runTaskList(cmd *cobra.Command, args []string) error {
	var tasks []controlplane.TaskView
	if err := apiGet("/tasks", &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks installed")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tSTATE\tPERIOD\tIDLE\tRUNS")
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%dms\t%dms\t%s\n",
			t.Index, truncate(t.Name, 24), taskState(t.TaskInfo), t.PeriodMs, t.IdleMs, humanize.Comma(int64(t.Runs)))
	}
	return w.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	index, err := parseIndex(args[0])
	if err != nil {
		return err
	}

	var t controlplane.TaskView
	if err := apiGet(fmt.Sprintf("/tasks/%d", index), &t); err != nil {
		return err
	}

	fmt.Printf("Index:    %d\n", t.Index)
	fmt.Printf("Name:     %s\n", t.Name)
	fmt.Printf("State:    %s\n", taskState(t.TaskInfo))
	fmt.Printf("Period:   %d ticks (%dms)\n", t.Period, t.PeriodMs)
	fmt.Printf("Last run: tick %d (%dms ago)\n", t.LastRun, t.IdleMs)
	fmt.Printf("Runs:     %s\n", humanize.Comma(int64(t.Runs)))
	return nil
}

func runTaskSleep(cmd *cobra.Command, args []string) error {
	index, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	ms, err := parseMs(args[1])
	if err != nil {
		return err
	}

	if err := apiPost(fmt.Sprintf("/tasks/%d/sleep", index), controlplane.DurationRequest{Ms: ms}); err != nil {
		return err
	}
	fmt.Printf("Task %d sleeping for %dms\n", index, ms)
	return nil
}

func taskState(t scheduler.TaskInfo) string {
	switch {
	case !t.Enabled:
		return "suspended"
	case t.Sleeping:
		return fmt.Sprintf("sleeping (%d ticks)", t.SleepTicks)
	}
	return "ready"
}

// --- Helpers ---

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid task index %q", s)
	}
	return n, nil
}

func parseID(kind, s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s id %q (want 0-65535)", kind, s)
	}
	return uint16(n), nil
}

func parseMs(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid duration %q (want milliseconds > 0)", s)
	}
	return uint32(n), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
