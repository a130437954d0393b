package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

var gallerySimilarCmd = &cobra.Command{
	Use:   "similar",
	Short: "List the records nearest to a face",
	Long: `List the enrolled records nearest to a probe, closest first. Useful to check
for look-alikes before choosing a threshold.

The local gallery is searched through its HNSW graph; with --db the PostgreSQL
mirror written by "gallery push" is queried instead.

Examples:
  face-attendance gallery similar --image visitor.jpg --limit 10
  face-attendance gallery similar --embedding-file probe.json --db`,
	Args: cobra.NoArgs,
	RunE: runGallerySimilar,
}

func init() {
	galleryCmd.AddCommand(gallerySimilarCmd)

	gallerySimilarCmd.Flags().String("embedding-file", "", "JSON file with the probe embedding")
	gallerySimilarCmd.Flags().String("image", "", "Image file with the probe face")
	gallerySimilarCmd.Flags().Int("limit", constants.DefaultSimilarLimit, "Maximum number of records")
	gallerySimilarCmd.Flags().Bool("db", false, "Query the PostgreSQL mirror")
	gallerySimilarCmd.Flags().Bool("json", false, "Output as JSON")
}

func runGallerySimilar(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	useDB := mustGetBool(cmd, "db")
	jsonOutput := mustGetBool(cmd, "json")

	if limit < 1 || limit > constants.MaxSimilarLimit {
		return fmt.Errorf("--limit must be within [1, %d]", constants.MaxSimilarLimit)
	}

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	emb, err := a.probeEmbedding(cmd)
	if err != nil {
		return err
	}

	var candidates []matcher.Candidate
	if useDB {
		if a.cfg.Database.URL == "" {
			return errors.New("DATABASE_URL environment variable is required for --db")
		}
		pool, err := postgres.Open(cmd.Context(), &a.cfg.Database, a.log)
		if err != nil {
			return err
		}
		defer pool.Close()
		candidates, err = postgres.NewGalleryMirror(pool).FindSimilar(cmd.Context(), emb, limit)
		if err != nil {
			return err
		}
	} else {
		candidates, err = a.store.Nearest(emb, limit)
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		if candidates == nil {
			candidates = []matcher.Candidate{}
		}
		return outputJSON(candidates)
	}
	if len(candidates) == 0 {
		fmt.Println("No records to compare against.")
		return nil
	}
	threshold := a.svc.Threshold()
	for _, c := range candidates {
		marker := " "
		if c.Distance <= threshold {
			marker = "*"
		}
		fmt.Printf("%s %4d  %-40s %.4f\n", marker, c.Index, c.Name, c.Distance)
	}
	fmt.Printf("\n* within threshold %.4f\n", threshold)
	return nil
}
