package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/yz4230/bluegreen/cmd/shared"
	"github.com/yz4230/bluegreen/internal/usecase"
)

var historyFlags struct {
	env   string
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past release attempts of an environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := shared.SignalContext()
		defer cancel()

		injector := shared.NewInjector()
		defer injector.Shutdown()

		attempts, err := do.MustInvoke[usecase.ListAttemptsUsecase](injector).Execute(ctx, historyFlags.env, historyFlags.limit)
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			fmt.Println(shared.DimText.Render("no releases recorded"))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, shared.TableHeader.Render("STARTED")+"\t"+
			shared.TableHeader.Render("ID")+"\t"+
			shared.TableHeader.Render("SLOT")+"\t"+
			shared.TableHeader.Render("OUTCOME")+"\t"+
			shared.TableHeader.Render("ARTIFACT"))
		for _, a := range attempts {
			outcome := shared.OutcomeText(a.Outcome)
			if a.Degraded {
				outcome += " " + shared.Warning.Render("(degraded)")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				a.StartedAt.Local().Format(time.DateTime), a.ID, a.TargetSlot, outcome, a.Artifact)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyFlags.env, "env", "e", "", "Environment to list")
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "Maximum number of attempts, 0 for all")
	historyCmd.MarkFlagRequired("env")
}
