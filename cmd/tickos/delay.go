package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/tickos/internal/controlplane"
	"github.com/fentz26/tickos/internal/scheduler"
)

var delayCmd = &cobra.Command{
	Use:   "delay",
	Short: "Manage soft delays",
}

var delayListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active soft delays",
	Args:  cobra.NoArgs,
	RunE:  runDelayList,
}

var delayArmCmd = &cobra.Command{
	Use:   "arm [key] [ms]",
	Short: "Arm or restart a soft delay",
	Args:  cobra.ExactArgs(2),
	RunE:  runDelayArm,
}

var delayPollCmd = &cobra.Command{
	Use:   "poll [key]",
	Short: "Report whether a soft delay has expired",
	Long:  "Exits non-zero when the key is unknown. An expired delay stays in the table until removed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelayPoll,
}

var delayRemoveCmd = &cobra.Command{
	Use:   "remove [key]",
	Short: "Release a soft delay",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelayRemove,
}

func init() {
	delayCmd.AddCommand(delayListCmd, delayArmCmd, delayPollCmd, delayRemoveCmd)
}

func runDelayList(cmd *cobra.Command, args []string) error {
	var delays []scheduler.DelayInfo
	if err := apiGet("/delays", &delays); err != nil {
		return err
	}

	if len(delays) == 0 {
		fmt.Println("No soft delays armed")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tREMAINING\tEXPIRED")
	for _, d := range delays {
		fmt.Fprintf(w, "%d\t%d\t%t\n", d.Key, d.Remaining, d.Expired)
	}
	return w.Flush()
}

func runDelayArm(cmd *cobra.Command, args []string) error {
	key, err := parseID("delay", args[0])
	if err != nil {
		return err
	}
	ms, err := parseMs(args[1])
	if err != nil {
		return err
	}

	if err := apiPut(fmt.Sprintf("/delays/%d", key), controlplane.DurationRequest{Ms: ms}); err != nil {
		return err
	}
	fmt.Printf("Delay %d armed for %dms\n", key, ms)
	return nil
}

func runDelayPoll(cmd *cobra.Command, args []string) error {
	key, err := parseID("delay", args[0])
	if err != nil {
		return err
	}

	var d scheduler.DelayInfo
	if err := apiGet(fmt.Sprintf("/delays/%d", key), &d); err != nil {
		return err
	}
	if d.Expired {
		fmt.Printf("Delay %d: expired\n", key)
	} else {
		fmt.Printf("Delay %d: %d ticks remaining\n", key, d.Remaining)
	}
	return nil
}

func runDelayRemove(cmd *cobra.Command, args []string) error {
	key, err := parseID("delay", args[0])
	if err != nil {
		return err
	}

	if err := apiDelete(fmt.Sprintf("/delays/%d", key)); err != nil {
		return err
	}
	fmt.Printf("Delay %d removed\n", key)
	return nil
}
