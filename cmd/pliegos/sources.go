// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pliegos/internal/sources"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the known catalogs, or the URLs a query would open",
	RunE:  runSources,
}

func init() {
	sourcesCmd.Flags().String("query", "", "show the result-page URLs for this query")
	sourcesCmd.Flags().String("sources", defaultSources, "comma-separated catalogs")
	sourcesCmd.Flags().Int("pages", 1, "result pages per catalog")

	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		for _, s := range sources.All() {
			paged := "single page"
			if s.Pagination != nil {
				paged = fmt.Sprintf("%d per page", s.Pagination.ResultsPerPage)
			}
			fmt.Fprintf(os.Stdout, "%-10s %-36s %-32s %s\n", s.ID, s.Name, s.Host, paged)
		}
		return nil
	}

	list, _ := cmd.Flags().GetString("sources")
	ids, err := sources.ParseIDs(list)
	if err != nil {
		return err
	}
	pages, _ := cmd.Flags().GetInt("pages")
	for _, t := range sources.BuildURLs(ids, query, pages) {
		fmt.Fprintf(os.Stdout, "%-10s p%-3d %s\n", t.Source, t.Page, t.URL)
	}
	return nil
}
