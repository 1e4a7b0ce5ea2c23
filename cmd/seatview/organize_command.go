package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/avfms/seatview-scraper/internal/organizer"
)

func newOrganizeCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Work with a completed scrape on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newStatsCommand())
	cmd.AddCommand(newTreeCommand())
	cmd.AddCommand(newCSVCommand())
	cmd.AddCommand(newGalleryCommand())
	cmd.AddCommand(newFlatCommand(cmdCtx))

	return cmd
}

func loadCollection(cmd *cobra.Command) (*organizer.Collection, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, err
	}
	return organizer.Load(dir)
}

func addDirFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("dir", "d", ".", "scrape output directory (holds metadata.json)")
}

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize photo counts by section and row",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := loadCollection(cmd)
			if err != nil {
				return err
			}
			stats := col.Stats()

			fmt.Printf("%s: %d photos (%d downloaded, %d failed, %d metadata-only)\n",
				stats.Venue, stats.Total, stats.Downloaded, stats.Failed, stats.MetaOnly)
			fmt.Printf("seat info: %d with seat, %d row-only\n\n", stats.WithSeat, stats.WithoutSeat)

			rows := make([][]string, 0, len(stats.Sections))
			for _, sec := range stats.Sections {
				rows = append(rows, []string{
					sec.Section,
					strconv.Itoa(len(sec.Rows)),
					strconv.Itoa(sec.Photos),
				})
			}
			fmt.Println(renderTable(
				[]string{"Section", "Rows", "Photos"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	addDirFlag(cmd)
	return cmd
}

func newTreeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the section/row hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := loadCollection(cmd)
			if err != nil {
				return err
			}
			return col.Tree(os.Stdout)
		},
	}
	addDirFlag(cmd)
	return cmd
}

func newCSVCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Export the photo index as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := loadCollection(cmd)
			if err != nil {
				return err
			}
			if outPath == "" {
				return col.WriteCSV(os.Stdout)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			if err := col.WriteCSV(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", outPath, err)
			}
			fmt.Printf("wrote %s (%d photos)\n", outPath, len(col.Entries))
			return nil
		},
	}
	addDirFlag(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "O", "", "write CSV to this file instead of stdout")
	return cmd
}

func newGalleryCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Render a static HTML gallery of the collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := loadCollection(cmd)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = filepath.Join(col.Dir, "gallery.html")
			}
			if err := col.WriteGallery(outPath); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d photos)\n", outPath, len(col.Entries))
			return nil
		},
	}
	addDirFlag(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "O", "", "gallery path (default <dir>/gallery.html)")
	return cmd
}

func newFlatCommand(cmdCtx *commandContext) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "flat",
		Short: "Copy downloaded images into a single flat directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := loadCollection(cmd)
			if err != nil {
				return err
			}
			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}
			if dest == "" {
				dest = filepath.Join(col.Dir, "flat")
			}
			copied, err := col.Flatten(dest, logger)
			if err != nil {
				return err
			}
			fmt.Printf("copied %d images into %s\n", copied, dest)
			return nil
		},
	}
	addDirFlag(cmd)
	cmd.Flags().StringVar(&dest, "dest", "", "destination directory (default <dir>/flat)")
	return cmd
}
