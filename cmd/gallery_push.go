package cmd

import (
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database/postgres"
)

var galleryPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Mirror the gallery into PostgreSQL",
	Long: `Replace the PostgreSQL gallery mirror with the current gallery file. The mirror
is used by reporting tools and "gallery similar --db"; the gallery file stays
the source of truth.

Requires DATABASE_URL.`,
	Args: cobra.NoArgs,
	RunE: runGalleryPush,
}

func init() {
	galleryCmd.AddCommand(galleryPushCmd)

	galleryPushCmd.Flags().Bool("json", false, "Output as JSON")
}

func runGalleryPush(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := cmd.Context()

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	if a.cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Open(ctx, &a.cfg.Database, a.log)
	if err != nil {
		return err
	}
	defer pool.Close()

	records := a.store.Records()
	var progress func()
	if !jsonOutput {
		bar := progressbar.NewOptions(len(records),
			progressbar.OptionSetDescription("Mirroring records"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("records"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		progress = func() { bar.Add(1) }
	}

	mirror := postgres.NewGalleryMirror(pool)
	if err := mirror.Replace(ctx, records, progress); err != nil {
		return err
	}
	count, err := mirror.Count(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(map[string]any{"records": count})
	}
	fmt.Printf("\nMirrored %d record(s) to PostgreSQL\n", count)
	return nil
}
