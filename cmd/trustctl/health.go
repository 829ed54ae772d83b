package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := newClient()

	req, err := client.newRequest(http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := client.http.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if outputFmt != "table" {
		return printOutput(map[string]any{
			"status": resp.StatusCode,
			"body":   string(body),
		})
	}

	printTable([]string{"Check", "Status"}, [][]string{
		{"Liveness", fmt.Sprintf("%d %s", resp.StatusCode, string(body))},
	})
	return nil
}
