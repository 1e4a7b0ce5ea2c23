package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avfms/seatview-scraper/internal/organizer"
)

func newSearchCommand(_ *commandContext) *cobra.Command {
	var (
		filter organizer.Filter
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find photos by section, row, or seat",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Section == "" && filter.Row == "" && filter.Seat == "" {
				return fmt.Errorf("at least one of --section, --row, --seat is required")
			}
			col, err := loadCollection(cmd)
			if err != nil {
				return err
			}
			matches := col.Search(filter)
			if limit > 0 && len(matches) > limit {
				matches = matches[:limit]
			}
			if len(matches) == 0 {
				fmt.Println("no photos match")
				return nil
			}

			rows := make([][]string, 0, len(matches))
			for _, e := range matches {
				status := "metadata-only"
				if e.Download != nil {
					status = string(e.Download.Status)
				}
				rows = append(rows, []string{
					e.ID, e.Section, e.Row, e.Seat, status, e.PageURL,
				})
			}
			fmt.Println(renderTable(
				[]string{"Photo", "Section", "Row", "Seat", "Status", "Page"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	addDirFlag(cmd)
	cmd.Flags().StringVar(&filter.Section, "section", "", "section ID to match")
	cmd.Flags().StringVar(&filter.Row, "row", "", "row label to match")
	cmd.Flags().StringVar(&filter.Seat, "seat", "", "seat label to match")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of results (0 = all)")
	return cmd
}
