package verification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/replay"
	"solana-infra-watch/internal/reporting"
)

// RerunDir is the subdirectory of the run's output directory that receives
// the verification run's artifacts.
const RerunDir = "rerun"

// Rerunner replays the dataset a second time from a fresh sandbox and
// compares the outcome against the first run.
type Rerunner struct {
	cfg   *config.Config
	first *reporting.Report
	base  zerolog.Logger // handed to the rerun driver untagged
	log   zerolog.Logger
}

// Options wires a Rerunner.
type Options struct {
	// Config is the configuration of the run being checked. The rerun uses a
	// copy whose output directory points at the rerun subdirectory.
	Config *config.Config
	// First is the report produced by the run being checked.
	First  *reporting.Report
	Logger zerolog.Logger
}

// New creates a Rerunner.
func New(opts Options) (*Rerunner, error) {
	if opts.Config == nil {
		return nil, errors.New("verification: config is required")
	}
	if opts.First == nil {
		return nil, errors.New("verification: first-run report is required")
	}
	return &Rerunner{
		cfg:   opts.Config,
		first: opts.First,
		base:  opts.Logger,
		log:   opts.Logger.With().Str("component", "verification").Logger(),
	}, nil
}

// Verify assembles a fresh sandbox from the same configuration, replays the
// dataset into the rerun subdirectory, and compares the two runs field by
// field and artifact by artifact. The returned error covers rerun failures
// only; a divergent outcome is reported, not returned.
func (r *Rerunner) Verify(ctx context.Context) (*Report, error) {
	alt := *r.cfg
	alt.Replay.OutputDir = filepath.Join(r.cfg.Replay.OutputDir, RerunDir)
	// Pacing cannot influence the outcome, so the rerun never paces.
	alt.Replay.Speed = "max"

	driver, err := replay.Assemble(&alt, r.base)
	if err != nil {
		return nil, fmt.Errorf("verification rerun: %w", err)
	}
	second, err := driver.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("verification rerun: %w", err)
	}

	rep := CompareReports(r.first, second)
	r.compareArtifacts(rep, r.cfg.Replay.OutputDir, alt.Replay.OutputDir)

	if rep.Deterministic() {
		r.log.Info().
			Int("trades", rep.TradesTotal).
			Int("artifacts", rep.ArtifactsCompared).
			Msg("rerun reproduced the run exactly")
	} else {
		r.log.Error().
			Int("divergences", len(rep.Divergences)).
			Strs("artifacts", rep.ArtifactsDivergent).
			Msg("rerun diverged from the first run")
	}
	return rep, nil
}

// compareArtifacts byte-compares every artifact file between the two output
// directories. An unreadable file counts as divergent.
func (r *Rerunner) compareArtifacts(rep *Report, firstDir, secondDir string) {
	for _, name := range []string{
		reporting.SummaryFile,
		reporting.TradesFile,
		reporting.WalletsFile,
		reporting.ReportFile,
	} {
		rep.ArtifactsCompared++
		a, errA := os.ReadFile(filepath.Join(firstDir, name))
		b, errB := os.ReadFile(filepath.Join(secondDir, name))
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			rep.ArtifactsDivergent = append(rep.ArtifactsDivergent, name)
		}
	}
}
