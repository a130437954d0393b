package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/face"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Identify a face against the gallery",
	Long: `Identify a single face embedding against the enrolled gallery.

The probe is either a precomputed embedding (JSON array) or an image sent to
the embedding service.

Examples:
  # Identify from a photo
  face-attendance identify --image visitor.jpg

  # Identify a precomputed embedding with a stricter threshold
  face-attendance identify --embedding-file probe.json --threshold 0.3

  # JSON output
  face-attendance identify --image visitor.jpg --json`,
	Args: cobra.NoArgs,
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().String("embedding-file", "", "JSON file with the probe embedding")
	identifyCmd.Flags().String("image", "", "Image file with the probe face")
	identifyCmd.Flags().Float64("threshold", 0, "Cosine distance threshold (defaults to the model profile)")
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

// IdentifyOutput is the JSON output of the identify command.
type IdentifyOutput struct {
	Name       string   `json:"name"`
	Classified bool     `json:"classified"`
	Distance   *float64 `json:"distance"`
	Confidence float64  `json:"confidence"`
	Threshold  float64  `json:"threshold"`
	Records    int      `json:"records"`
}

func newIdentifyOutput(res matcher.Result, threshold float64, records int) IdentifyOutput {
	out := IdentifyOutput{
		Name:       res.Name,
		Classified: res.Classified,
		Confidence: res.Confidence(),
		Threshold:  threshold,
		Records:    records,
	}
	if res.Index >= 0 {
		d := res.Distance
		out.Distance = &d
	}
	return out
}

func runIdentify(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	a, err := loadApp(appOptions{threshold: thresholdFlag(cmd)})
	if err != nil {
		return err
	}

	emb, err := a.probeEmbedding(cmd)
	if err != nil {
		return err
	}
	res, err := a.svc.Identify(cmd.Context(), emb)
	if err != nil {
		return fmt.Errorf("identifying: %w", err)
	}

	out := newIdentifyOutput(res, a.svc.Threshold(), a.store.Len())
	if jsonOutput {
		return outputJSON(out)
	}

	switch {
	case out.Distance == nil:
		fmt.Println("Gallery is empty, nothing to compare against.")
	case res.Classified:
		fmt.Printf("%s (distance %.4f, confidence %.1f%%)\n", res.Name, res.Distance, res.Confidence()*100)
	default:
		fmt.Printf("%s (nearest distance %.4f exceeds threshold %.4f)\n", face.Unknown, res.Distance, out.Threshold)
	}
	return nil
}
