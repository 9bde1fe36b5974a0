package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"vlab/internal/api"
	"vlab/internal/controller"
	"vlab/internal/detail"
	"vlab/internal/directory"
	"vlab/internal/playback"
	"vlab/internal/report"
	"vlab/internal/store"
	"vlab/internal/sysinfo"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
)

// SessionsCmd lists the validation sessions as the directory sees them.
func SessionsCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List validation sessions",
		Run: func(cmd *cobra.Command, args []string) {
			s, err := env.openStore()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer s.Close()

			dir := directory.New(env.newClient(s), env.Logger, env.Cfg.FrameRate)
			dir.Refresh(context.Background())
			if msg := dir.Err(); msg != "" {
				fmt.Printf("Error: %s\n", msg)
				return
			}

			rows := dir.Rows()
			if len(rows) == 0 {
				fmt.Println("No validation sessions.")
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILE\tDATE\tDURATION\tDETECTED\tCAPACITY\tSTATUS")
			for _, r := range rows {
				date := "—"
				if !r.Date.IsZero() {
					date = r.Date.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.Filename, date, r.Duration, r.DetectedCount, r.MaxCapacity, r.Status)
			}
			w.Flush()
		},
	}
}

// FleetCmd shows the live fleet occupancy snapshot, optionally refreshing on
// an interval until interrupted.
func FleetCmd(env *Env) *cobra.Command {
	var watch string

	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Show live fleet occupancy",
		Run: func(cmd *cobra.Command, args []string) {
			s, err := env.openStore()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer s.Close()
			client := env.newClient(s)

			printStates := func() {
				states, err := client.BusStates(context.Background())
				if err != nil {
					fmt.Printf("Error: %s\n", api.ErrorMessage(err, "could not fetch the fleet state"))
					return
				}
				if len(states) == 0 {
					fmt.Println("No vehicles reporting.")
					return
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "BUS\tROUTE\tPASSENGERS\tLEVEL\tLAST UPDATE")
				for _, st := range states {
					route := "—"
					if st.RouteCode != nil {
						route = *st.RouteCode
					}
					updated := "—"
					if st.LastUpdate != nil {
						updated = st.LastUpdate.Format("15:04:05")
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						st.InternalCode, route, st.TotalPassengers, st.OccupancyLevel, updated)
				}
				w.Flush()
			}

			printStates()
			if watch == "" {
				return
			}

			interval, err := time.ParseDuration(watch)
			if err != nil || interval <= 0 {
				interval = 5 * time.Second
			}
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					fmt.Println()
					printStates()
				case <-stop:
					return
				}
			}
		},
	}

	cmd.Flags().StringVar(&watch, "watch", "", "refresh interval, e.g. 5s (empty: print once)")
	return cmd
}

// UploadCmd runs one interactive validation: create a session, upload the
// video, show progress until the backend confirms completion, then print the
// results handoff.
func UploadCmd(env *Env) *cobra.Command {
	var capacity int
	var busID int64

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a video and follow its validation run",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				fmt.Printf("Cannot read %s: %v\n", path, err)
				return
			}

			s, err := env.openStore()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer s.Close()
			client := env.newClient(s)

			if capacity == 0 {
				capacity = env.Cfg.MaxCapacity
			}
			var bus *int64
			if busID != 0 {
				bus = &busID
			} else {
				bus = env.Cfg.BusID
			}

			dir := directory.New(client, env.Logger, env.Cfg.FrameRate)
			done := make(chan struct{})

			ctrl := controller.New(client, env.Logger, controller.DefaultTimings(), controller.Hooks{
				RefreshDirectory: func() {
					dir.Refresh(context.Background())
				},
				NavigateToResults: func(sessionID int64, session *api.ValidationSession) {
					printResultsHandoff(client, sessionID, session)
					close(done)
				},
			})
			defer ctrl.Close()

			started, err := ctrl.Upload(context.Background(), path, capacity, bus)
			if err != nil {
				fmt.Printf("Cannot start: %s\n", err)
				return
			}
			if !started {
				if msg := ctrl.Snapshot().Err; msg != "" {
					fmt.Printf("Upload failed: %s\n", msg)
				} else {
					fmt.Println("Upload failed.")
				}
				return
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			lastLine := ""
			for {
				select {
				case <-ticker.C:
					snap := ctrl.Snapshot()
					line := fmt.Sprintf("[%3d%%] %s (about %ds left)", snap.Progress, snap.Stage, snap.CountdownSec)
					if line != lastLine {
						fmt.Println(line)
						lastLine = line
					}
				case <-stop:
					ctrl.Cancel()
					fmt.Println("Cancelled. The backend session keeps whatever state it reached.")
					return
				case <-done:
					return
				}
			}
		},
	}

	cmd.Flags().IntVar(&capacity, "capacity", 0, "declared max capacity (default from config)")
	cmd.Flags().Int64Var(&busID, "bus", 0, "vehicle id to link the session to")
	return cmd
}

func printResultsHandoff(client *api.Client, sessionID int64, session *api.ValidationSession) {
	fmt.Printf("\nSession %d completed.\n", sessionID)
	if session == nil {
		return
	}
	if session.DetectedMaxOccupancy != nil {
		fmt.Printf("Detected max occupancy: %d (declared capacity %d)\n",
			*session.DetectedMaxOccupancy, session.MaxCapacityDeclared)
	}
	if session.ProcessedVideoPath != nil && *session.ProcessedVideoPath != "" {
		url := client.ProcessedVideoURL(*session.ProcessedVideoPath)
		fmt.Printf("Processed video: %s\n", url)
		fmt.Println("Scan to review on a phone:")
		qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
	}
	fmt.Printf("Run `vlab results %d` for the frame-by-frame review.\n", sessionID)
}

// ResultsCmd loads one session's detection sequence and summarizes it.
// --at probes the occupancy at a playhead time using the correlator.
func ResultsCmd(env *Env) *cobra.Command {
	var at float64

	cmd := &cobra.Command{
		Use:   "results SESSION_ID",
		Short: "Review a session's detection results",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			sessionID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				fmt.Printf("Invalid session id %q\n", args[0])
				return
			}

			s, err := env.openStore()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer s.Close()
			client := env.newClient(s)

			loader := detail.NewLoader(client, env.Logger)
			loader.SetSession(context.Background(), sessionID)
			if msg := loader.Err(); msg != "" {
				fmt.Printf("Error: %s\n", msg)
				return
			}

			session := loader.Session()
			frames := loader.Frames()
			if session == nil {
				fmt.Printf("Session %d not found.\n", sessionID)
				return
			}

			fmt.Printf("Session %d (%s)\n", sessionID, session.NormalizedStatus())
			fmt.Printf("Declared capacity: %d\n", session.MaxCapacityDeclared)
			if session.DetectedMaxOccupancy != nil {
				fmt.Printf("Detected max occupancy: %d\n", *session.DetectedMaxOccupancy)
			}
			fmt.Printf("Frames: %d\n", len(frames))
			if session.ProcessedVideoPath != nil && *session.ProcessedVideoPath != "" {
				fmt.Printf("Processed video: %s\n", client.ProcessedVideoURL(*session.ProcessedVideoPath))
			}

			if !cmd.Flags().Changed("at") {
				return
			}

			corr := playback.NewCorrelator(frames, session.MaxCapacityDeclared)
			corr.Window = env.Cfg.DetectionWindowSec
			state := corr.At(at)
			fmt.Printf("\nAt t=%.2fs: %d passengers", at, state.Count)
			if state.Confidence != nil {
				fmt.Printf(" (confidence %.2f)", *state.Confidence)
			}
			if state.CapacityExceeded {
				fmt.Print(" — CAPACITY EXCEEDED")
			}
			fmt.Println()
		},
	}

	cmd.Flags().Float64Var(&at, "at", 0, "playhead time in seconds to probe")
	return cmd
}

// ExportCmd writes session reports as JSON, either one session or all.
func ExportCmd(env *Env) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export SESSION_ID|all",
		Short: "Export validation reports as JSON",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := env.openStore()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer s.Close()
			client := env.newClient(s)

			if dir == "" {
				dir = env.Cfg.ExportDir
			}
			builder := report.NewBuilder(client)
			ctx := context.Background()

			if args[0] == "all" {
				sessions, err := client.ListSessions(ctx)
				if err != nil {
					fmt.Printf("Error: %s\n", api.ErrorMessage(err, "could not list sessions"))
					return
				}
				path, err := builder.ExportAll(ctx, sessions, dir)
				if err != nil {
					fmt.Printf("Export failed: %v\n", err)
					return
				}
				fmt.Printf("Wrote %s\n", path)
				return
			}

			sessionID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				fmt.Printf("Invalid session id %q\n", args[0])
				return
			}
			path, err := builder.ExportSession(ctx, sessionID, dir)
			if err != nil {
				fmt.Printf("Export failed: %v\n", err)
				return
			}
			fmt.Printf("Wrote %s\n", path)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default from config)")
	return cmd
}

// StatusCmd prints host diagnostics, the queue depth and the configured
// backend.
func StatusCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show client status and host info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Backend: %s\n", env.Cfg.APIBaseURL)
			fmt.Printf("Watch dir: %s\n", env.Cfg.WatchPath)

			if s, err := env.openStore(); err == nil {
				if email, _ := s.Credential(store.CredUserEmail); email != "" {
					fmt.Printf("Logged in as: %s\n", email)
				}
				if n, err := s.PendingCount(); err == nil {
					fmt.Printf("Upload queue: %d pending\n", n)
				}
				s.Close()
			}

			info, err := sysinfo.Collect(env.Cfg.WatchPath)
			if err != nil {
				return
			}
			fmt.Println()
			for k, v := range info {
				fmt.Printf("%-18s %v\n", k+":", v)
			}
		},
	}
}
