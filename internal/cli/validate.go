package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"classquiz/internal/bank"
)

// NewValidateCmd checks the configured question bank without starting anything.
func NewValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the question bank file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			b, err := bank.LoadFile(cfg.Bank.Path)
			if err != nil {
				logger.WithError(err).WithField("path", cfg.Bank.Path).Error("question bank is invalid")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d questions, %d categories, fingerprint %s\n",
				cfg.Bank.Path, len(b.Questions), len(b.Categories()), b.Fingerprint)
			return err
		},
	}
}
