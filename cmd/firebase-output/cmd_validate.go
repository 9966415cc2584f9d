package main

import (
	"fmt"

	"firebase-output/internal/config"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without contacting Firebase",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath(cmd))
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: %s %s -> %s (verb %s)\n",
		cfg.Input.Type, cfg.Firebase.Path, cfg.Firebase.URL, cfg.Firebase.Verb)
	return nil
}
