package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and maintain the gallery",
	Long:  `Commands for listing, pruning, mirroring and backing up the enrolled gallery.`,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runGalleryList,
}

var galleryRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove every record of an identity",
	Long: `Remove every record enrolled under a name. Names are compared without regard
to case or diacritics, so "zofia" also removes records enrolled as "Zofia".`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryRemove,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryRemoveCmd)

	galleryListCmd.Flags().Bool("json", false, "Output as JSON")
	galleryRemoveCmd.Flags().Bool("json", false, "Output as JSON")
}

// IdentitySummary counts the records of one identity.
type IdentitySummary struct {
	Name    string `json:"name"`
	Records int    `json:"records"`
}

// GalleryListOutput is the JSON output of gallery list.
type GalleryListOutput struct {
	Path       string            `json:"path"`
	Records    int               `json:"records"`
	Dim        int               `json:"dim"`
	Identities []IdentitySummary `json:"identities"`
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, rec := range a.store.Snapshot() {
		counts[rec.Name]++
	}
	out := GalleryListOutput{
		Path:       a.store.Path(),
		Records:    a.store.Len(),
		Dim:        a.store.Dim(),
		Identities: []IdentitySummary{},
	}
	for _, name := range a.store.Names() {
		out.Identities = append(out.Identities, IdentitySummary{Name: name, Records: counts[name]})
	}

	if jsonOutput {
		return outputJSON(out)
	}
	if out.Records == 0 {
		fmt.Printf("Gallery %s is empty\n", out.Path)
		return nil
	}
	fmt.Printf("Gallery %s: %d records, %d identities, dim %d\n\n", out.Path, out.Records, len(out.Identities), out.Dim)
	for _, id := range out.Identities {
		fmt.Printf("  %-40s %d\n", id.Name, id.Records)
	}
	return nil
}

func runGalleryRemove(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	removed, err := a.svc.Remove(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(map[string]any{"name": args[0], "removed": removed, "records": a.store.Len()})
	}
	fmt.Printf("Removed %d record(s) of %s (%d remaining)\n", removed, args[0], a.store.Len())
	return nil
}
