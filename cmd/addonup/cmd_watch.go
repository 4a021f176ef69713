package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/addonvalidator/internal/gate"
	"github.com/JonMunkholm/addonvalidator/internal/watch"
)

// watchCmd re-checks a file whenever it changes
var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Re-check a file every time it changes on disk",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	v := gate.NewValidator(gate.NewTextPresenter(cmd.OutOrStdout()))
	w := watch.New(args[0], v, clientCfg.ContentAccess)
	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "watching %s (Ctrl-C to stop)\n", args[0])

	select {
	case <-ctx.Done():
		w.Stop()
	case <-w.Done():
	}
	return nil
}
