package gate

import "github.com/spf13/cobra"

// GateCmd groups the verification stage commands.
var GateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Gate a release on an external verification stage",
}

func init() {
	GateCmd.AddCommand(runCmd)
}
