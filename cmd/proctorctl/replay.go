package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/app"
	"github.com/xela07ax/proctor/internal/audit"
	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/engine"
)

var (
	replayHall   string
	replayHallID int64
	replayFPS    float64
)

var replayCmd = &cobra.Command{
	Use:   "replay <video|frame-dir>",
	Short: "Run detection over a recorded exam and write the session report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayHall, "hall", "Replay", "name of the hall created for this replay")
	replayCmd.Flags().Int64Var(&replayHallID, "hall-id", 0, "attach the replay to an existing hall instead")
	replayCmd.Flags().Float64Var(&replayFPS, "fps", 0, "frame rate of the recording (default: detection.frame_rate)")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	det := cfg.Detection
	det.FrameDelay = 0 // offline: as fast as inference allows
	if replayFPS > 0 {
		det.FrameRate = replayFPS
	}

	hall, err := replayTarget(cmd)
	if err != nil {
		return err
	}
	cam, err := DB.CreateCamera(ctx, domain.Camera{
		Name:      filepath.Base(input),
		HallID:    hall.ID,
		VideoPath: input,
	})
	if err != nil {
		return fmt.Errorf("register camera: %w", err)
	}

	metrics := engine.NewMetrics(nil)
	journal := audit.NewJournal(DB, logger, nil)
	journal.Start()
	defer journal.Stop()

	models, err := app.StartInference(cfg.Inference, det, metrics, logger)
	if err != nil {
		return err
	}
	defer models.Close()

	stats := engine.NewStatsStore(det.RecentLimit)
	offenders := engine.NewOffenderTracker(det.OffenderStep)
	aggregator := engine.NewAggregator(engine.AggregatorConfig{DedupWindow: det.DedupWindow},
		stats, offenders, models.Classifier, DB, journal, nil, metrics, logger)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Replaying "+cam.Name),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	factory := app.NewSessionFactory(det, models, aggregator, metrics, logger)
	factory.OnFrame = func(int) { bar.Add(1) }

	sess, err := factory.Build(ctx, cam, hall, func() bool { return true })
	if err != nil {
		return err
	}
	runErr := sess.Run(ctx)
	bar.Finish()
	if runErr != nil {
		logger.Error("replay ended early", zap.Error(runErr))
	}

	out := cmd.OutOrStdout()
	cs := stats.Camera(cam.ID)
	fmt.Fprintf(out, "\n%s: %d violations recorded\n", hall.Location(), cs.Count)
	for _, v := range cs.Violations {
		fmt.Fprintf(out, "  %s  track %d  %s (%s)  %s\n", v.FormattedTime, v.TrackID, v.IdentityName, v.Identity, v.Reason)
	}
	if repeat := offenders.Collect(nil); len(repeat) > 0 {
		fmt.Fprintln(out, "repeat offenders:")
		for _, o := range repeat {
			fmt.Fprintf(out, "  %s (%s): %d\n", o.IdentityName, o.Identity, o.Count)
		}
	}
	fmt.Fprintf(out, "reports in %s, evidence in %s\n", det.ReportDir, det.EvidenceDir)
	return runErr
}

func replayTarget(cmd *cobra.Command) (domain.Hall, error) {
	if replayHallID > 0 {
		return DB.GetHall(cmd.Context(), replayHallID)
	}
	h, err := DB.CreateHall(cmd.Context(), domain.Hall{Name: replayHall})
	if err != nil {
		return domain.Hall{}, fmt.Errorf("register hall: %w", err)
	}
	return h, nil
}
