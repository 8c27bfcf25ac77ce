package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"biomark/adapters/predictor/dualbranch"
	"biomark/adapters/rng"
	"biomark/app"
	"biomark/domain/biomarker"
	"biomark/domain/core"
	"biomark/domain/patient"
	"biomark/domain/prediction"
	"biomark/internal"
	"biomark/internal/config"
	"biomark/internal/container"
	"biomark/internal/imaging"
	"biomark/internal/profiling"
	"biomark/internal/report"
	"biomark/models"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "biomark-cli",
		Short: "Biomark CLI for model weights, offline simulation and history profiling",
	}

	rootCmd.AddCommand(
		newWeightsCmd(),
		newSimulateCmd(),
		newSummarizeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newWeightsCmd() *cobra.Command {
	var out string
	var seed int64

	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Write randomly initialized dual-branch weights",
		Long: `Write a weights file the dualbranch predictor can load.

Example: biomark-cli weights --out models/weights.json --seed 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := dualbranch.RandomWeights(rand.New(rand.NewSource(seed)), len(biomarker.Markers))
			if err := dualbranch.SaveWeights(out, w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Weights written: %s (image %dx%d, biomarker %dx%d, head %dx%d)\n",
				out, w.Image.Rows, w.Image.Cols, w.Biomarker.Rows, w.Biomarker.Cols, w.Head.Rows, w.Head.Cols)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "models/weights.json", "Output file path")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic weights")

	return cmd
}

func newSimulateCmd() *cobra.Command {
	var n int
	var seed int64
	var predictorName string
	var weightsPath string
	var out string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run predictions on a synthetic slide and write the export bundle",
		Long: `Run n predictions with randomized biomarker panels against a synthetic
slide in one session, then write the zip bundle of every export.

Example: biomark-cli simulate -n 25 --seed 7 --predictor dualbranch --out run.zip`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if n <= 0 {
				return fmt.Errorf("n must be > 0")
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			summary, err := runSimulate(cmd.Context(), f, simulateOptions{
				N:         n,
				Seed:      seed,
				Predictor: predictorName,
				Weights:   weightsPath,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bundle written: %s\n", out)
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().IntVarP(&n, "n", "n", 10, "Number of predictions")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for panels and predictor")
	cmd.Flags().StringVar(&predictorName, "predictor", config.PredictorRandom, "Predictor: random or dualbranch")
	cmd.Flags().StringVar(&weightsPath, "weights", "", "Weights file for the dualbranch predictor")
	cmd.Flags().StringVar(&out, "out", "biomark-bundle.zip", "Output zip path")

	return cmd
}

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize [history.csv|history.xlsx]",
		Short: "Summarize and profile an exported history",
		Long: `Read a history CSV or workbook written by the dashboard export and
print the aggregate summary plus the confidence distribution profile.

Example: biomark-cli summarize biomark-history.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := readHistory(args[0], f)
			if err != nil {
				return err
			}
			events := rowsToEvents(rows)
			profile, err := profiling.NewDistributionAnalyzer().ProfileEvents(events)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"summary": prediction.Summarize(events),
				"profile": profile,
			})
		},
	}
	return cmd
}

type simulateOptions struct {
	N         int
	Seed      int64
	Predictor string
	Weights   string
}

// runSimulate drives the analysis service headlessly and writes the bundle to w
func runSimulate(ctx context.Context, w io.Writer, opts simulateOptions) (prediction.Summary, error) {
	logger := internal.NewLogger(internal.LogLevelWarn)
	source := rng.NewSource(opts.Seed)

	predictor, err := container.NewPredictor(config.ModelConfig{
		Predictor:   opts.Predictor,
		WeightsPath: opts.Weights,
	}, source, logger)
	if err != nil {
		return prediction.Summary{}, err
	}

	svc := app.NewAnalysisService(predictor, source, logger, app.DefaultAnalysisOptions())
	sess := models.NewSession(core.NewSessionID(), 0, core.Now().Time())

	slide, err := syntheticSlide(source.Stream("slide"), 128)
	if err != nil {
		return prediction.Summary{}, err
	}
	if _, err := svc.Upload(ctx, sess, "synthetic.png", slide); err != nil {
		return prediction.Summary{}, err
	}

	panels := source.Stream("panels")
	for i := 0; i < opts.N; i++ {
		if _, err := svc.Predict(ctx, sess, randomForm(panels)); err != nil {
			return prediction.Summary{}, fmt.Errorf("prediction %d: %w", i+1, err)
		}
	}

	if _, err := svc.ExportBundle(ctx, w, sess); err != nil {
		return prediction.Summary{}, err
	}
	return svc.Summary(sess, 0), nil
}

// randomForm draws one to three distinct markers with random readings and
// random patient attributes
func randomForm(r *rand.Rand) models.AnalysisForm {
	count := 1 + r.Intn(3)
	readings := make(biomarker.Readings, count)
	for _, idx := range r.Perm(len(biomarker.Markers))[:count] {
		m := biomarker.Markers[idx]
		readings[m] = biomarker.Reading{
			Marker:     m,
			Intensity:  biomarker.Intensities[r.Intn(len(biomarker.Intensities))],
			Pattern:    biomarker.Patterns[r.Intn(len(biomarker.Patterns))],
			Percentage: biomarker.Percent(float64(r.Intn(101))),
		}
	}

	return models.AnalysisForm{
		Biomarkers: readings,
		Patient: patient.Attributes{
			Age:         30 + r.Intn(50),
			TumorSizeMM: 5 + r.Float64()*45,
			Grade:       1 + r.Intn(3),
			NodalStatus: patient.NodalStatuses[r.Intn(len(patient.NodalStatuses))],
		},
	}
}

// syntheticSlide renders a noisy pink-purple tile resembling an H&E stain
func syntheticSlide(r *rand.Rand, size int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			jitter := uint8(r.Intn(40))
			img.Set(x, y, color.RGBA{R: 200 - jitter, G: 120 + jitter/2, B: 190 - jitter/2, A: 255})
		}
	}
	return imaging.EncodePNG(img)
}

// readHistory picks the parser from the file extension
func readHistory(path string, r io.Reader) ([]report.HistoryRow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return report.ReadHistoryXLSX(r)
	case ".csv", "":
		return report.ReadHistoryCSV(r)
	default:
		return nil, fmt.Errorf("unsupported history format: %s", filepath.Ext(path))
	}
}

// rowsToEvents rebuilds the fields of each event the summary reads
func rowsToEvents(rows []report.HistoryRow) []prediction.Event {
	events := make([]prediction.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, prediction.Event{
			ID:            row.EventID,
			Timestamp:     row.Timestamp,
			Label:         row.Label,
			Confidence:    row.Confidence,
			Probabilities: row.Probabilities,
			Predictor:     row.Predictor,
		})
	}
	return events
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
