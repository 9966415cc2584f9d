package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "firebase-output",
	Short: "Write JSON events to a Firebase Realtime Database",
	Long: `firebase-output reads JSON events from stdin, a file or an HTTP endpoint
and writes each one to a Firebase Realtime Database. The target path and the
write verb (put, patch, post, delete) are templates over event fields.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (env FIREBASE_OUTPUT_CONFIG)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configPath resolves the config file from the flag, then the environment.
// An empty result means defaults plus environment overrides only.
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	return os.Getenv("FIREBASE_OUTPUT_CONFIG")
}
