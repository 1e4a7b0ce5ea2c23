package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSectionsCommand(_ *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "List the sections present in a scraped collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := loadCollection(cmd)
			if err != nil {
				return err
			}
			for _, section := range col.Sections() {
				fmt.Println(section)
			}
			return nil
		},
	}
	addDirFlag(cmd)
	return cmd
}
