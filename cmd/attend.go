package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

var attendCmd = &cobra.Command{
	Use:   "attend <image>...",
	Short: "Run an attendance session over a sequence of frames",
	Long: `Run an attendance session over a sequence of images, treated as consecutive
camera frames. An identity is recorded once it has been recognised in
--confirm-frames consecutive frames, and at most once per session.

Recorded events are appended to --log (or WEB_ATTENDANCE_LOG) as JSON lines.

Examples:
  # Confirm identities on a single frame
  face-attendance attend --confirm-frames 1 frames/*.jpg

  # JSON summary
  face-attendance attend frames/*.jpg --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAttend,
}

func init() {
	rootCmd.AddCommand(attendCmd)

	attendCmd.Flags().Float64("threshold", 0, "Cosine distance threshold (defaults to the model profile)")
	attendCmd.Flags().Int("confirm-frames", 0, "Consecutive frames required to confirm an identity (defaults to MATCH_CONFIRM_FRAMES)")
	attendCmd.Flags().Float64("min-confidence", -1, "Minimum confidence per frame (defaults to MATCH_MIN_CONFIDENCE)")
	attendCmd.Flags().String("log", "", "Append attendance events to this JSONL file")
	attendCmd.Flags().Bool("json", false, "Output as JSON")
}

// FrameOutput reports one processed frame.
type FrameOutput struct {
	Seq        int     `json:"seq"`
	File       string  `json:"file"`
	Name       string  `json:"name"`
	Classified bool    `json:"classified"`
	Confidence float64 `json:"confidence"`
	Confirmed  bool    `json:"confirmed"`
	Recorded   bool    `json:"recorded"`
	Error      string  `json:"error,omitempty"`
}

// AttendOutput is the JSON output of the attend command.
type AttendOutput struct {
	SessionID string             `json:"session_id"`
	Frames    []FrameOutput      `json:"frames"`
	Events    []attendance.Event `json:"events"`
}

func runAttend(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	a, err := loadApp(appOptions{threshold: thresholdFlag(cmd)})
	if err != nil {
		return err
	}

	frames := mustGetInt(cmd, "confirm-frames")
	if frames == 0 {
		frames = a.cfg.Match.ConfirmFrames
	}
	minConfidence := mustGetFloat64(cmd, "min-confidence")
	if minConfidence < 0 {
		minConfidence = a.cfg.Match.MinConfidence
	}
	confirmer, err := recognition.NewConfirmer(frames, minConfidence)
	if err != nil {
		return err
	}

	runnerOpts := []recognition.RunnerOption{recognition.WithRunnerLogger(a.log.With("component", "runner"))}
	logPath := mustGetString(cmd, "log")
	if logPath == "" {
		logPath = a.cfg.Web.AttendanceLog
	}
	if logPath != "" {
		fileLog, err := attendance.OpenFileLog(logPath)
		if err != nil {
			return err
		}
		defer fileLog.Close()
		runnerOpts = append(runnerOpts, recognition.WithSink(fileLog))
	}
	runner := recognition.NewRunner(a.svc, recognition.ModeAttend, confirmer, runnerOpts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	frameCh := make(chan recognition.Frame)
	readErr := make(chan error, 1)
	go func() {
		defer close(frameCh)
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				readErr <- fmt.Errorf("reading frame: %w", err)
				return
			}
			select {
			case frameCh <- recognition.Frame{Image: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := AttendOutput{SessionID: runner.Session().ID().String()}
	runErr := runner.Run(ctx, frameCh, func(o recognition.Outcome) {
		fo := FrameOutput{
			Seq:        o.Seq,
			File:       args[o.Seq-1],
			Name:       o.Result.Name,
			Classified: o.Result.Classified,
			Confidence: o.Result.Confidence(),
			Confirmed:  o.Confirmed,
			Recorded:   o.Event != nil,
		}
		if o.Err != nil {
			fo.Error = o.Err.Error()
		}
		out.Frames = append(out.Frames, fo)
		if !jsonOutput {
			printFrame(fo)
		}
	})
	out.Events = runner.Session().End()

	select {
	case err := <-readErr:
		return err
	default:
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if jsonOutput {
		return outputJSON(out)
	}
	fmt.Printf("\nSession %s: %d frame(s) processed, %d recorded\n", out.SessionID, len(out.Frames), len(out.Events))
	for _, ev := range out.Events {
		fmt.Printf("  %s  %s (confidence %.1f%%)\n", ev.Timestamp.Format("15:04:05"), ev.Name, ev.Confidence*100)
	}
	return nil
}

func printFrame(f FrameOutput) {
	switch {
	case f.Error != "":
		fmt.Printf("[%d] %s: %s\n", f.Seq, f.File, f.Error)
	case f.Recorded:
		fmt.Printf("[%d] %s: %s recorded (confidence %.1f%%)\n", f.Seq, f.File, f.Name, f.Confidence*100)
	default:
		fmt.Printf("[%d] %s: %s (confidence %.1f%%)\n", f.Seq, f.File, f.Name, f.Confidence*100)
	}
}
