package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "trustctl",
	Short: "CLI for the skill trust pipeline server",
	Long: `trustctl operates the skill trust pipeline: listing and reviewing
quarantined skills, querying the audit log, and checking server health.

Review operations require a bearer token with the appropriate reviewer
permissions; pass it with --token or the SKILLSMITH_TOKEN env var.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Trust pipeline server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token (default: from SKILLSMITH_TOKEN env)")

	rootCmd.AddCommand(quarantineCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(healthCmd)
}

// resolvedToken returns the effective bearer token.
// Priority: --token flag > SKILLSMITH_TOKEN env var.
func resolvedToken() string {
	if authToken != "" {
		return authToken
	}
	return os.Getenv("SKILLSMITH_TOKEN")
}
