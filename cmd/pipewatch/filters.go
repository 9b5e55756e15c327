package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "List the filters the server can run as stages",
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := newClient().ListFilters(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, f := range filters {
			params := make([]string, 0, len(f.Params))
			for name, value := range f.Params {
				params = append(params, fmt.Sprintf("%s=%v", name, value))
			}
			sort.Strings(params)
			fmt.Fprintf(out, "%s\t%s\n", f.Name, strings.Join(params, " "))
		}
		return nil
	},
}
