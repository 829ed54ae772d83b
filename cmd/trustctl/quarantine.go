package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/smith-horn/skillsmith/pkg/quarantine"
)

const quarantineBasePath = "/api/quarantine/v1alpha1"

var (
	listStatus   string
	listSkillID  string
	reviewReason string
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect and review quarantined skills",
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantine entries",
	RunE:  runQuarantineList,
}

var quarantineGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one quarantine entry with its review history",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuarantineGet,
}

var quarantineApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a quarantined skill for release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(args[0], quarantine.DecisionApprove)
	},
}

var quarantineRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a quarantined skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(args[0], quarantine.DecisionReject)
	},
}

func init() {
	quarantineListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, approved, rejected)")
	quarantineListCmd.Flags().StringVar(&listSkillID, "skill", "", "Filter by skill ID")
	quarantineApproveCmd.Flags().StringVar(&reviewReason, "reason", "", "Review reason")
	quarantineRejectCmd.Flags().StringVar(&reviewReason, "reason", "", "Review reason")

	quarantineCmd.AddCommand(quarantineListCmd)
	quarantineCmd.AddCommand(quarantineGetCmd)
	quarantineCmd.AddCommand(quarantineApproveCmd)
	quarantineCmd.AddCommand(quarantineRejectCmd)
}

func runQuarantineList(cmd *cobra.Command, args []string) error {
	client := newClient()

	query := url.Values{}
	if listStatus != "" {
		query.Set("status", listStatus)
	}
	if listSkillID != "" {
		query.Set("skillId", listSkillID)
	}
	path := quarantineBasePath + "/entries"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp struct {
		Entries   []quarantine.Entry `json:"entries"`
		TotalSize int                `json:"totalSize"`
	}
	if err := client.getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}

	headers := []string{"ID", "Skill", "Severity", "Status", "Risk", "Created"}
	rows := make([][]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		rows = append(rows, []string{
			truncate(e.ID, 12),
			e.SkillID,
			string(e.Severity),
			string(e.Status),
			fmt.Sprintf("%d", e.RiskScore),
			e.CreatedAt.Format(time.RFC3339),
		})
	}
	printTable(headers, rows)
	return nil
}

func runQuarantineGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	var entry quarantine.Entry
	if err := client.getJSON(quarantineBasePath+"/entries/"+args[0], &entry); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(entry)
	}

	headers := []string{"Field", "Value"}
	rows := [][]string{
		{"ID", entry.ID},
		{"Skill", entry.SkillID},
		{"Severity", string(entry.Severity)},
		{"Status", string(entry.Status)},
		{"Risk score", fmt.Sprintf("%d", entry.RiskScore)},
		{"Reason", truncate(entry.Reason, 60)},
		{"Created", entry.CreatedAt.Format(time.RFC3339)},
	}
	for _, a := range entry.Approvals {
		rows = append(rows, []string{
			"Review",
			fmt.Sprintf("%s by %s at %s", a.Decision, a.ReviewerID, a.CreatedAt.Format(time.RFC3339)),
		})
	}
	printTable(headers, rows)
	return nil
}

func runReview(id string, decision quarantine.Decision) error {
	client := newClient()

	body := map[string]string{
		"decision": string(decision),
		"reason":   reviewReason,
	}
	var entry quarantine.Entry
	if err := client.postJSON(quarantineBasePath+"/entries/"+id+"/review", body, &entry); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(entry)
	}

	fmt.Printf("Entry %s is now %s", entry.ID, entry.Status)
	if entry.Status == quarantine.StatusPending {
		fmt.Printf(" (awaiting further approvals)")
	}
	fmt.Println()
	return nil
}
