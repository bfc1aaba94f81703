package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/yz4230/bluegreen/cmd/shared"
	"github.com/yz4230/bluegreen/internal/usecase"
)

var runFlags struct {
	env     string
	image   string
	timeout time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run --env ENV --image REF -- COMMAND [ARG...]",
	Short: "Run a verification command and release the image only if it exits 0",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := shared.SignalContext()
		defer cancel()
		log := zerolog.Ctx(ctx)

		log.Info().Strs("command", args).Msg("running verification stage")
		code, err := Verify(ctx, args, runFlags.timeout, os.Stdout, os.Stderr)
		if err != nil {
			return err
		}
		log.Info().Int("exit_code", code).Msg("verification stage finished")

		injector := shared.NewInjector()
		defer injector.Shutdown()

		uc := do.MustInvoke[usecase.ReleaseUsecase](injector)
		attempt, err := uc.Execute(ctx, usecase.ReleaseInput{
			Env:          runFlags.env,
			Image:        runFlags.image,
			GateExitCode: &code,
		})
		if attempt != nil {
			shared.PrintAttempt(os.Stdout, attempt)
		}
		return err
	},
}

// Verify runs argv and reports its exit status. A command killed by a
// signal or by the timeout reports -1. The error is set only when the
// command could not be started.
func Verify(ctx context.Context, argv []string, timeout time.Duration, stdout, stderr io.Writer) (int, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = stdout
	c.Stderr = stderr

	err := c.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("run verification %s: %w", argv[0], err)
	}
	return 0, nil
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.env, "env", "e", "", "Environment to release into")
	runCmd.Flags().StringVarP(&runFlags.image, "image", "i", "", "Image reference, repository[:tag][@digest]")
	runCmd.Flags().DurationVar(&runFlags.timeout, "timeout", 0, "Abort the verification command after this long (0 waits forever)")
	runCmd.MarkFlagRequired("env")
	runCmd.MarkFlagRequired("image")
}
