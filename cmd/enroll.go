package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/face"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll an identity into the gallery",
	Long: `Enroll a face under a name. Several records may share the same name, which
improves recognition across poses and lighting.

Exactly one input is required: a precomputed embedding, a single image, or a
directory of images which are all enrolled under the name. Images in which no
face is detected are skipped.

Examples:
  # Enroll from a photo
  face-attendance enroll "Alice Smith" --image alice.jpg

  # Enroll every photo in a directory
  face-attendance enroll "Alice Smith" --dir photos/alice/

  # Enroll a precomputed embedding
  face-attendance enroll "Alice Smith" --embedding-file alice.json`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("embedding-file", "", "JSON file with the embedding")
	enrollCmd.Flags().String("image", "", "Image file with the face")
	enrollCmd.Flags().String("dir", "", "Directory of images to enroll")
	enrollCmd.Flags().StringSlice("ext", []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif"}, "Image extensions picked from --dir")
	enrollCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Parallel embedding requests for --dir")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

// EnrollOutput is the JSON output of the enroll command.
type EnrollOutput struct {
	Name     string   `json:"name"`
	Enrolled int      `json:"enrolled"`
	Skipped  []string `json:"skipped,omitempty"`
	Records  int      `json:"records"`
	Dim      int      `json:"dim"`
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name := args[0]
	dir := mustGetString(cmd, "dir")
	jsonOutput := mustGetBool(cmd, "json")

	if err := face.ValidateName(name); err != nil {
		return err
	}

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}

	out := EnrollOutput{Name: face.CleanName(name)}
	if dir != "" {
		if mustGetString(cmd, "embedding-file") != "" || mustGetString(cmd, "image") != "" {
			return errors.New("--dir cannot be combined with --embedding-file or --image")
		}
		enrolled, skipped, err := a.enrollDir(cmd, name, dir, jsonOutput)
		if err != nil {
			return err
		}
		out.Enrolled, out.Skipped = enrolled, skipped
	} else {
		emb, err := a.probeEmbedding(cmd)
		if err != nil {
			return err
		}
		if _, err := a.svc.Enroll(cmd.Context(), name, emb); err != nil {
			return fmt.Errorf("enrolling %q: %w", name, err)
		}
		out.Enrolled = 1
	}
	out.Records = a.store.Len()
	out.Dim = a.store.Dim()

	if jsonOutput {
		return outputJSON(out)
	}
	fmt.Printf("Enrolled %d record(s) for %s (gallery: %d records, dim %d)\n", out.Enrolled, out.Name, out.Records, out.Dim)
	if len(out.Skipped) > 0 {
		fmt.Printf("Skipped %d image(s) without a detectable face:\n", len(out.Skipped))
		for _, s := range out.Skipped {
			fmt.Printf("  - %s\n", s)
		}
	}
	return nil
}

// listImages returns the files in dir with one of the extensions, sorted by name.
func listImages(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if slices.Contains(exts, ext) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// enrollDir extracts embeddings from every image in dir concurrently and
// enrolls them in file name order.
func (a *app) enrollDir(cmd *cobra.Command, name, dir string, jsonOutput bool) (int, []string, error) {
	files, err := listImages(dir, mustGetStringSlice(cmd, "ext"))
	if err != nil {
		return 0, nil, err
	}
	if len(files) == 0 {
		return 0, nil, fmt.Errorf("no images found in %s", dir)
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Computing embeddings"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	embeddings := make([][]float32, len(files))
	var (
		skipped []string
		mu      sync.Mutex
	)
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(1, mustGetInt(cmd, "concurrency")))
	for i, file := range files {
		g.Go(func() error {
			defer func() {
				if bar != nil {
					bar.Add(1)
				}
			}()
			emb, err := a.extractFile(ctx, file)
			if errors.Is(err, extractor.ErrNoFaceDetected) {
				mu.Lock()
				skipped = append(skipped, file)
				mu.Unlock()
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			embeddings[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	enrolled := 0
	for i, emb := range embeddings {
		if emb == nil {
			continue
		}
		if _, err := a.svc.Enroll(cmd.Context(), name, emb); err != nil {
			return enrolled, skipped, fmt.Errorf("enrolling %s: %w", files[i], err)
		}
		enrolled++
	}
	slices.Sort(skipped)
	return enrolled, skipped, nil
}

func (a *app) extractFile(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.svc.Extract(ctx, data)
}
