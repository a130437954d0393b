package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/storage/minio"
)

var galleryBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload the gallery file to object storage",
	Long: `Upload the gallery file to the MinIO bucket under a timestamped key and as the
latest backup. Requires MINIO_ENDPOINT.`,
	Args: cobra.NoArgs,
	RunE: runGalleryBackup,
}

var galleryBackupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List gallery backups in object storage",
	Args:  cobra.NoArgs,
	RunE:  runGalleryBackups,
}

var galleryRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the gallery file with a backup",
	Long: `Download a backup and atomically replace the local gallery file with it. The
latest backup is used unless --key names another one. A backup that does not
decode is rejected and the local file is left untouched.`,
	Args: cobra.NoArgs,
	RunE: runGalleryRestore,
}

func init() {
	galleryCmd.AddCommand(galleryBackupCmd)
	galleryCmd.AddCommand(galleryBackupsCmd)
	galleryCmd.AddCommand(galleryRestoreCmd)

	galleryBackupsCmd.Flags().Bool("json", false, "Output as JSON")
	galleryRestoreCmd.Flags().String("key", "", "Backup key to restore (defaults to the latest)")
}

func runGalleryBackup(cmd *cobra.Command, args []string) error {
	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	client, err := minio.Connect(cmd.Context(), a.cfg.Storage)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(a.store.Path())
	if err != nil {
		return fmt.Errorf("reading gallery: %w", err)
	}
	key, err := client.BackupGallery(cmd.Context(), data, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Backed up %d record(s) to %s/%s\n", a.store.Len(), a.cfg.Storage.Bucket, key)
	return nil
}

func runGalleryBackups(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	a, err := loadApp(appOptions{})
	if err != nil {
		return err
	}
	client, err := minio.Connect(cmd.Context(), a.cfg.Storage)
	if err != nil {
		return err
	}
	backups, err := client.ListBackups(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		if backups == nil {
			backups = []minio.Backup{}
		}
		return outputJSON(backups)
	}
	if len(backups) == 0 {
		fmt.Println("No backups found.")
		return nil
	}
	for _, b := range backups {
		fmt.Printf("%-50s %10d  %s\n", b.Key, b.Size, b.LastModified.Local().Format(time.DateTime))
	}
	return nil
}

// backupSource fetches a validated gallery backup; an empty key selects the latest.
type backupSource interface {
	FetchGallery(ctx context.Context, key string) ([]byte, error)
}

// restoreGallery replaces the gallery file at path with a backup and reopens it.
// The local file is never read before being replaced, so a corrupt gallery can
// be recovered.
func restoreGallery(ctx context.Context, src backupSource, path, key string) (*gallery.Store, error) {
	data, err := src.FetchGallery(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, err := gallery.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("backup is not a valid gallery: %w", err)
	}
	if err := gallery.WriteFileAtomic(gallery.LocalFS{}, path, data); err != nil {
		return nil, err
	}
	return gallery.Open(path)
}

func runGalleryRestore(cmd *cobra.Command, args []string) error {
	key := mustGetString(cmd, "key")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client, err := minio.Connect(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}
	store, err := restoreGallery(cmd.Context(), client, cfg.Gallery.Path, key)
	if err != nil {
		return err
	}
	if key == "" {
		key = minio.LatestKey
	}
	fmt.Printf("Restored %d record(s) from %s into %s\n", store.Len(), key, store.Path())
	return nil
}
