package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/web"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the face-attendance HTTP API.

The server exposes identification, gallery management and attendance sessions
under /api/v1, and Prometheus metrics under /metrics. Attendance events are
appended to WEB_ATTENDANCE_LOG and stored in PostgreSQL when DATABASE_URL is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (defaults to WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (defaults to WEB_HOST)")
}

// openSinks builds the attendance sink from the configuration. The returned
// closer releases the log file and the database pool.
func (a *app) openSinks(ctx context.Context) (attendance.Sink, func(), error) {
	var (
		sinks   attendance.Tee
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if path := a.cfg.Web.AttendanceLog; path != "" {
		fileLog, err := attendance.OpenFileLog(path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fileLog)
		closers = append(closers, func() { fileLog.Close() })
		fmt.Printf("Attendance log: %s\n", path)
	}

	if a.cfg.Database.URL != "" {
		fmt.Printf("Connecting to PostgreSQL database...\n")
		pool, err := postgres.Open(ctx, &a.cfg.Database, a.log.With("component", "postgres"))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, postgres.NewAttendanceRepository(pool))
		closers = append(closers, func() { pool.Close() })
		fmt.Printf("Attendance storage enabled (PostgreSQL)\n")
	}

	if len(sinks) == 0 {
		return nil, closeAll, nil
	}
	return sinks, closeAll, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	m := metrics.New()
	a, err := loadApp(appOptions{metrics: m})
	if err != nil {
		return err
	}
	m.SetGalleryRecords(a.store.Len())

	if port := mustGetInt(cmd, "port"); port != 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, closeSinks, err := a.openSinks(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()

	server := web.NewServer(a.cfg, web.Deps{
		Service: a.svc,
		Sink:    sink,
		Metrics: m,
		Logger:  a.log.With("component", "web"),
	})
	if a.cfg.Web.APIToken == "" {
		a.log.Warn("WEB_API_TOKEN is not set, gallery changes are not authenticated")
	}

	fmt.Printf("Gallery %s: %d records, threshold %.2f\n", a.store.Path(), a.store.Len(), a.svc.Threshold())
	fmt.Printf("Starting face-attendance on http://%s\n", a.cfg.ServerAddr())
	fmt.Println("Press Ctrl+C to stop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
