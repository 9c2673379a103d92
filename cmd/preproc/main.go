// Command preproc runs the EEG preprocessing pipeline: single files, whole
// directories, or a parameter sweep over the artifact-rejection thresholds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/Metanome/eeg-preprocppl/internal/batch"
	"github.com/Metanome/eeg-preprocppl/internal/dsp"
	"github.com/Metanome/eeg-preprocppl/internal/eeg"
	"github.com/Metanome/eeg-preprocppl/internal/pipeline"
	"github.com/Metanome/eeg-preprocppl/internal/report"
	"github.com/Metanome/eeg-preprocppl/internal/runlog"
	"github.com/Metanome/eeg-preprocppl/internal/store"
	"github.com/Metanome/eeg-preprocppl/internal/sweep"
	"github.com/Metanome/eeg-preprocppl/internal/version"
)

func main() {
	var (
		mode       = flag.String("mode", "batch", "run mode: process, batch, sweep, runs")
		input      = flag.String("input", "", "input file (process) or directory (batch, sweep)")
		output     = flag.String("output", "output", "output directory")
		configPath = flag.String("config", "", "JSON config file; defaults apply when omitted")
		workers    = flag.Int("workers", runtime.NumCPU(), "parallel files in batch mode")
		dbPath     = flag.String("db", "preproc_runs.db", "run history database; empty disables")
		logDir     = flag.String("logs", "logs", "per-run log directory; empty disables")
		plots      = flag.Bool("plots", false, "write HTML diagnostic plots (process mode)")
		staleAfter = flag.Duration("clean-older-than", 0, "delete outputs older than this before running; 0 disables")

		burstSpec  = flag.String("burst", "10:30:5", "sweep burst criteria: min:max:step or comma list")
		windowSpec = flag.String("window", "0.15,0.25,0.35,disabled", "sweep window criteria: comma list, 'disabled' allowed")
		sweepCSV   = flag.String("sweep-csv", "sweep_results.csv", "sweep summary CSV path")
		heatmap    = flag.String("heatmap", "", "sweep score heatmap PNG path; empty disables")

		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("preproc %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := pipeline.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = pipeline.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	var st *store.Store
	if *dbPath != "" {
		var err error
		st, err = store.Open(*dbPath)
		if err != nil {
			log.Fatalf("open run store: %v", err)
		}
		defer st.Close()
	}

	runID := fmt.Sprintf("%d", time.Now().Unix())
	if st != nil {
		id, err := st.CreateRun(*mode, cfg)
		if err != nil {
			log.Fatalf("create run record: %v", err)
		}
		runID = id
	}

	rl := runlog.Discard()
	if *logDir != "" {
		var err error
		rl, err = runlog.Open(*logDir, runID)
		if err != nil {
			log.Fatalf("open run log: %v", err)
		}
	}
	defer rl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tk := pipeline.Toolkit{
		Signal:     dsp.Ops{},
		Montage:    eeg.BuiltinMontages{},
		Decomposer: dsp.SVDDecomposer{},
		Classifier: dsp.RuleClassifier{},
	}

	if *staleAfter > 0 {
		if _, err := batch.CleanStaleOutputs(*output, *staleAfter, rl); err != nil {
			log.Fatalf("clean stale outputs: %v", err)
		}
	}

	var err error
	switch *mode {
	case "process":
		err = runProcess(ctx, cfg, tk, rl, st, runID, *input, *output, *plots)
	case "batch":
		err = runBatch(ctx, cfg, tk, rl, st, runID, *input, *output, *workers)
	case "sweep":
		err = runSweep(ctx, cfg, tk, rl, st, runID, *input, *burstSpec, *windowSpec, *sweepCSV, *heatmap)
	case "runs":
		err = listRuns(st)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		rl.Printf("[preproc] run failed: %v", err)
		log.Fatalf("%v", err)
	}
}

func runProcess(ctx context.Context, cfg pipeline.Config, tk pipeline.Toolkit, rl *runlog.Log, st *store.Store, runID, input, output string, plots bool) error {
	if input == "" {
		return fmt.Errorf("process mode needs -input")
	}
	start := time.Now()
	runner := batch.NewRunner(pipeline.New(cfg, tk, rl), output, 1, rl)
	summary, err := runner.Run(ctx, []string{input})
	if err != nil {
		return err
	}
	rep := summary.Reports[0]
	if st != nil {
		if err := st.RecordFileReport(runID, rep); err != nil {
			rl.Printf("[preproc] record report: %v", err)
		}
		if err := st.FinishRun(runID, summary.Total, summary.Failed, time.Since(start)); err != nil {
			rl.Printf("[preproc] finish run: %v", err)
		}
	}
	printSummary(summary)
	if rep.Failed {
		return fmt.Errorf("processing failed at stage %s", rep.FatalStage)
	}

	if plots {
		if err := writePlots(rep, tk, output); err != nil {
			rl.Printf("[preproc] plots: %v", err)
			return err
		}
	}
	return nil
}

// writePlots renders the diagnostic HTML set: raw vs cleaned, and the
// component decomposition of the raw recording with removal decisions.
func writePlots(rep *pipeline.FileReport, tk pipeline.Toolkit, outputDir string) error {
	raw, err := eeg.Import(rep.Path)
	if err != nil {
		return fmt.Errorf("re-import raw for plotting: %w", err)
	}
	cleaned, err := eeg.Import(rep.OutputPath)
	if err != nil {
		return fmt.Errorf("import cleaned for plotting: %w", err)
	}

	base := filepath.Base(rep.Path)
	base = base[:len(base)-len(filepath.Ext(base))]
	baPath := filepath.Join(outputDir, base+"_compare.html")
	if err := report.SaveBeforeAfterPlot(raw, cleaned, baPath); err != nil {
		return err
	}

	if tk.Decomposer != nil {
		dec, err := tk.Decomposer.Decompose(raw)
		if err == nil {
			icPath := filepath.Join(outputDir, base+"_components.html")
			if err := report.SaveComponentPlot(dec, raw.SampleRate, rep.Removal, icPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func runBatch(ctx context.Context, cfg pipeline.Config, tk pipeline.Toolkit, rl *runlog.Log, st *store.Store, runID, input, output string, workers int) error {
	if input == "" {
		return fmt.Errorf("batch mode needs -input")
	}
	inputs, err := batch.DiscoverInputs(input)
	if err != nil {
		return err
	}
	start := time.Now()
	runner := batch.NewRunner(pipeline.New(cfg, tk, rl), output, workers, rl)
	summary, err := runner.Run(ctx, inputs)
	if err != nil {
		return err
	}
	if st != nil {
		for _, rep := range summary.Reports {
			if err := st.RecordFileReport(runID, rep); err != nil {
				rl.Printf("[preproc] record report: %v", err)
			}
		}
		if err := st.FinishRun(runID, summary.Total, summary.Failed, time.Since(start)); err != nil {
			rl.Printf("[preproc] finish run: %v", err)
		}
	}
	printSummary(summary)
	return nil
}

func runSweep(ctx context.Context, cfg pipeline.Config, tk pipeline.Toolkit, rl *runlog.Log, st *store.Store, runID, input, burstSpec, windowSpec, csvPath, heatmapPath string) error {
	if input == "" {
		return fmt.Errorf("sweep mode needs -input")
	}
	inputs, err := batch.DiscoverInputs(input)
	if err != nil {
		return err
	}
	bursts, err := sweep.ParseValueList(burstSpec)
	if err != nil {
		return fmt.Errorf("parse -burst: %w", err)
	}
	windows, err := sweep.ParseWindowList(windowSpec)
	if err != nil {
		return fmt.Errorf("parse -window: %w", err)
	}
	grid := sweep.Grid{BurstValues: bursts, WindowValues: windows}

	start := time.Now()
	opt := sweep.NewOptimizer(cfg, tk, sweep.DefaultCriteria(), rl)
	result, err := opt.Run(ctx, grid, inputs)
	if err != nil {
		return err
	}

	if st != nil {
		for _, cell := range result.Cells {
			if err := st.RecordSweepCell(runID, cell); err != nil {
				rl.Printf("[preproc] record sweep cell: %v", err)
			}
		}
		if err := st.FinishRun(runID, len(inputs), 0, time.Since(start)); err != nil {
			rl.Printf("[preproc] finish run: %v", err)
		}
	}
	if csvPath != "" {
		if err := sweep.WriteCSVFile(csvPath, result.Cells); err != nil {
			return err
		}
		fmt.Printf("sweep summary written to %s\n", csvPath)
	}
	if heatmapPath != "" {
		if err := sweep.SaveHeatmap(grid, result.Cells, heatmapPath); err != nil {
			return err
		}
		fmt.Printf("score heatmap written to %s\n", heatmapPath)
	}

	if result.Best == nil {
		fmt.Println("no combination met the admissibility criteria; inspect the CSV and relax the targets")
		return nil
	}
	best := result.Best
	fmt.Printf("recommended: %s (retention %.2f±%.2f, snr %+.2f dB, %d/%d files passing)\n",
		best.Label(), best.MeanRetention, best.StdRetention, best.MeanSNR, best.FilesPassing, len(inputs))
	return nil
}

func listRuns(st *store.Store) error {
	if st == nil {
		return fmt.Errorf("runs mode needs -db")
	}
	rows, err := st.ListRuns(20)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	for _, r := range rows {
		fmt.Printf("%s  %-8s  files=%d failed=%d  %s  %s\n",
			r.RunID, r.Mode, r.FilesTotal, r.FilesFailed,
			(time.Duration(r.ElapsedMS) * time.Millisecond).Round(time.Millisecond), r.Started)
	}
	return nil
}

func printSummary(s *batch.Summary) {
	fmt.Printf("processed %d file(s): %d ok, %d failed in %s\n",
		s.Total, s.Succeeded, s.Failed, s.Elapsed.Round(time.Millisecond))
	if s.Succeeded > 0 {
		fmt.Printf("mean retention %.2f, mean snr improvement %+.2f dB\n", s.MeanRetention, s.MeanSNRImprovementDB)
	}
	for stage, n := range s.FatalByStage {
		fmt.Printf("  %d failure(s) in stage %s\n", n, stage)
	}
	for _, rep := range s.Reports {
		status := "ok"
		if rep.Failed {
			status = "FAILED at " + rep.FatalStage
		}
		fmt.Fprintf(os.Stdout, "  %-40s %s\n", filepath.Base(rep.Path), status)
	}
}
