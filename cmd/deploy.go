package cmd

import (
	"os"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/yz4230/bluegreen/cmd/shared"
	"github.com/yz4230/bluegreen/internal/usecase"
)

var deployFlags struct {
	env          string
	image        string
	gateExitCode int
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Release an image into the inactive slot and switch traffic to it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := shared.SignalContext()
		defer cancel()

		injector := shared.NewInjector()
		defer injector.Shutdown()

		var gate *int
		if cmd.Flags().Changed("gate-exit-code") {
			gate = &deployFlags.gateExitCode
		}
		uc := do.MustInvoke[usecase.ReleaseUsecase](injector)
		attempt, err := uc.Execute(ctx, usecase.ReleaseInput{
			Env:          deployFlags.env,
			Image:        deployFlags.image,
			GateExitCode: gate,
		})
		if attempt != nil {
			shared.PrintAttempt(os.Stdout, attempt)
		}
		return err
	},
}

func init() {
	deployCmd.Flags().StringVarP(&deployFlags.env, "env", "e", "", "Environment to release into")
	deployCmd.Flags().StringVarP(&deployFlags.image, "image", "i", "", "Image reference, repository[:tag][@digest]")
	deployCmd.Flags().IntVar(&deployFlags.gateExitCode, "gate-exit-code", 0, "Exit status of the verification stage; non-zero rejects the release")
	deployCmd.MarkFlagRequired("env")
	deployCmd.MarkFlagRequired("image")
}
