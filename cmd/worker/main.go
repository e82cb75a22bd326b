// Command worker runs the interview telemetry pipeline: the queue consumers,
// the ability tracker and evaluator agents, and the operational HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "worker",
		Short:        "Interview telemetry processing pipeline",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newDLQCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
