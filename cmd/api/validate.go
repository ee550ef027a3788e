package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rm-3284/mle-bench-hpc/internal/config"
	"github.com/rm-3284/mle-bench-hpc/internal/models"
	"github.com/rm-3284/mle-bench-hpc/internal/validator"
	"github.com/spf13/cobra"
)

// Códigos de salida del subcomando validate
const (
	exitValid   = 0
	exitInvalid = 1
	exitFault   = 2
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a submission file locally without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			code := validateFile(ctx, cfg, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
			if code != exitValid {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

// validateFile valida path contra la competencia configurada y devuelve el código de salida
func validateFile(ctx context.Context, cfg *config.Config, path string, stdout, stderr io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}

	competition, err := resolveCompetition(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}

	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}

	v := validator.New(1, cfg.ValidatorTimeout)
	result, err := v.Validate(ctx, path, competition)

	switch models.ClassifyOutcome(result, err) {
	case models.VerdictFault:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	case models.VerdictRejected:
		fmt.Fprintln(stdout, result.Message)
		return exitInvalid
	default:
		fmt.Fprintln(stdout, result.Message)
		return exitValid
	}
}
