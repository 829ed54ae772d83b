package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smith-horn/skillsmith/pkg/auditlog"
)

const auditBasePath = "/api/audit/v1alpha1"

var (
	auditEventType string
	auditResource  string
	auditLimit     int
	cleanupDays    int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and manage the audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries, newest first",
	RunE:  runAuditList,
}

var auditCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge audit entries older than the retention window",
	RunE:  runAuditCleanup,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump the full audit log as JSON for SIEM ingestion",
	RunE:  runAuditExport,
}

func init() {
	auditListCmd.Flags().StringVar(&auditEventType, "event-type", "", "Filter by event type")
	auditListCmd.Flags().StringVar(&auditResource, "resource", "", "Filter by resource")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 0, "Maximum entries to return")
	auditCleanupCmd.Flags().IntVar(&cleanupDays, "retention-days", 90, "Delete entries older than this many days")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditCleanupCmd)
	auditCmd.AddCommand(auditExportCmd)
}

func runAuditList(cmd *cobra.Command, args []string) error {
	client := newClient()

	query := url.Values{}
	if auditEventType != "" {
		query.Set("eventType", auditEventType)
	}
	if auditResource != "" {
		query.Set("resource", auditResource)
	}
	if auditLimit > 0 {
		query.Set("limit", strconv.Itoa(auditLimit))
	}
	path := auditBasePath + "/entries"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp auditlog.EntryList
	if err := client.getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}

	headers := []string{"Time", "Event", "Actor", "Resource", "Result"}
	rows := make([][]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		rows = append(rows, []string{
			e.Timestamp,
			e.EventType,
			e.Actor,
			truncate(e.Resource, 36),
			e.Result,
		})
	}
	printTable(headers, rows)
	return nil
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	client := newClient()

	req, err := client.newRequest(http.MethodGet, auditBasePath+"/export", nil)
	if err != nil {
		return err
	}
	resp, err := client.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	// Stream the dump untouched; downstream exporters parse it.
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func runAuditCleanup(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp map[string]any
	if err := client.postJSON(auditBasePath+"/cleanup", map[string]int{"retentionDays": cleanupDays}, &resp); err != nil {
		return err
	}
	return printJSON(resp)
}
