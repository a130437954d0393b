package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/logger"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise recorded attendance",
	Long: `Summarise attendance events recorded by "attend" and "serve".

Events are read from the JSONL attendance log (--log or WEB_ATTENDANCE_LOG), or
from PostgreSQL with --db.

Examples:
  face-attendance report --since 24h
  face-attendance report --db --json`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Duration("since", 0, "Only include events newer than this (0 means all)")
	reportCmd.Flags().String("log", "", "Attendance log to read (defaults to WEB_ATTENDANCE_LOG)")
	reportCmd.Flags().String("session", "", "Only include events of this session ID")
	reportCmd.Flags().Bool("db", false, "Read events from PostgreSQL")
	reportCmd.Flags().Bool("json", false, "Output as JSON")
}

// AttendanceCount is the number of recorded events of one identity.
type AttendanceCount struct {
	Name   string    `json:"name"`
	Count  int       `json:"count"`
	LastAt time.Time `json:"last_at"`
}

// ReportOutput is the JSON output of the report command.
type ReportOutput struct {
	Since    *time.Time        `json:"since,omitempty"`
	Events   int               `json:"events"`
	Sessions int               `json:"sessions"`
	People   []AttendanceCount `json:"people"`
}

// summarize groups events by identity, most frequent first.
func summarize(events []attendance.Event) ReportOutput {
	byName := make(map[string]*AttendanceCount)
	sessions := make(map[string]struct{})
	for _, ev := range events {
		sessions[ev.SessionID.String()] = struct{}{}
		c, ok := byName[ev.Name]
		if !ok {
			c = &AttendanceCount{Name: ev.Name}
			byName[ev.Name] = c
		}
		c.Count++
		if ev.Timestamp.After(c.LastAt) {
			c.LastAt = ev.Timestamp
		}
	}

	out := ReportOutput{Events: len(events), Sessions: len(sessions), People: []AttendanceCount{}}
	for _, c := range byName {
		out.People = append(out.People, *c)
	}
	slices.SortFunc(out.People, func(a, b AttendanceCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func runReport(cmd *cobra.Command, args []string) error {
	since := mustGetDuration(cmd, "since")
	useDB := mustGetBool(cmd, "db")
	jsonOutput := mustGetBool(cmd, "json")

	var sessionID uuid.UUID
	if raw := mustGetString(cmd, "session"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid session ID: %w", err)
		}
		sessionID = id
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var from time.Time
	if since > 0 {
		from = time.Now().Add(-since)
	}

	var events []attendance.Event
	if useDB {
		if cfg.Database.URL == "" {
			return errors.New("DATABASE_URL environment variable is required for --db")
		}
		pool, err := postgres.Open(cmd.Context(), &cfg.Database, logger.New(cfg.LogLevel))
		if err != nil {
			return err
		}
		defer pool.Close()
		repo := postgres.NewAttendanceRepository(pool)
		if sessionID != uuid.Nil {
			events, err = repo.ListBySession(cmd.Context(), sessionID)
		} else {
			events, err = repo.ListSince(cmd.Context(), from)
		}
		if err != nil {
			return err
		}
	} else {
		path := mustGetString(cmd, "log")
		if path == "" {
			path = cfg.Web.AttendanceLog
		}
		if path == "" {
			return errors.New("no attendance log: set --log or WEB_ATTENDANCE_LOG, or use --db")
		}
		events, err = attendance.ReadFileLog(path)
		if err != nil {
			return err
		}
	}

	events = slices.DeleteFunc(events, func(ev attendance.Event) bool {
		return ev.Timestamp.Before(from) || (sessionID != uuid.Nil && ev.SessionID != sessionID)
	})

	out := summarize(events)
	if since > 0 {
		out.Since = &from
	}

	if jsonOutput {
		return outputJSON(out)
	}
	if out.Events == 0 {
		fmt.Println("No attendance recorded.")
		return nil
	}
	fmt.Printf("%d event(s) in %d session(s)\n\n", out.Events, out.Sessions)
	for _, p := range out.People {
		fmt.Printf("  %-40s %4d  last %s\n", p.Name, p.Count, p.LastAt.Local().Format(time.DateTime))
	}
	return nil
}
