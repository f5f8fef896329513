package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Inspect configured upstream sites",
}

var sitesTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Probe every site with a one-token request",
	RunE:  runSitesTest,
}

func init() {
	sitesCmd.AddCommand(sitesTestCmd)
	rootCmd.AddCommand(sitesCmd)
}

func runSitesTest(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.logger.Sync()

	ctx := cmd.Context()
	sites := a.admin.ListSites(ctx)
	out := cmd.OutOrStdout()
	if len(sites) == 0 {
		fmt.Fprintln(out, "No sites configured")
		return nil
	}

	results := a.admin.TestAllSites(ctx)
	for _, site := range sites {
		status := errorStyle.Render("FAIL")
		if results[site.ID] {
			status = successStyle.Render("OK")
		}
		enabled := ""
		if !site.Enabled {
			enabled = dimStyle.Render(" (disabled)")
		}
		fmt.Fprintf(out, "%s %d. %s %s%s\n", status, site.Priority, site.Name, dimStyle.Render(site.BaseURL), enabled)
	}
	return nil
}
