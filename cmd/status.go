package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/yz4230/bluegreen/cmd/shared"
	"github.com/yz4230/bluegreen/internal/config"
	"github.com/yz4230/bluegreen/internal/usecase"
)

var statusFlags struct {
	env string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show routing state and slots of an environment",
	Long:  "Show routing state and slots of an environment. Without --env, every environment of the catalog is shown.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := shared.SignalContext()
		defer cancel()

		injector := shared.NewInjector()
		defer injector.Shutdown()

		names := []string{statusFlags.env}
		if statusFlags.env == "" {
			catalog, err := do.Invoke[*config.Catalog](injector)
			if err != nil {
				return err
			}
			names = catalog.Names()
			if len(names) == 0 {
				return fmt.Errorf("no environments in the catalog, pass --env")
			}
		}

		uc := do.MustInvoke[usecase.GetEnvironmentUsecase](injector)
		for i, name := range names {
			if i > 0 {
				fmt.Println()
			}
			if err := printStatus(ctx, uc, name); err != nil {
				return err
			}
		}
		return nil
	},
}

func printStatus(ctx context.Context, uc usecase.GetEnvironmentUsecase, name string) error {
	status, err := uc.Execute(ctx, name)
	if err != nil {
		return err
	}

	fmt.Println(shared.Bold.Render("environment " + status.Name))
	if status.Routing == nil {
		fmt.Println(shared.DimText.Render("no release yet"))
	} else {
		fmt.Printf("active slot %s since %s\n", shared.Bold.Render(status.Routing.ActiveSlot.String()),
			status.Routing.LastSwitchedAt.Local().Format(time.DateTime))
	}
	if !status.InSync {
		fmt.Println(shared.Warning.Render(fmt.Sprintf("router link points at %q, which disagrees with the routing state", status.RouterSlot)))
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, shared.TableHeader.Render("SLOT")+"\t"+
		shared.TableHeader.Render("PORT")+"\t"+
		shared.TableHeader.Render("STATUS")+"\t"+
		shared.TableHeader.Render("ARTIFACT"))
	for _, s := range status.Slots {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.ID, s.Port, shared.SlotStatusText(s.Status), s.Artifact)
	}
	return w.Flush()
}

func init() {
	statusCmd.Flags().StringVarP(&statusFlags.env, "env", "e", "", "Environment to show (default: all catalog environments)")
}
