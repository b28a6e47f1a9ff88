package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	dentalanalyzer "github.com/menta2k/dental-analyzer"
	"github.com/menta2k/dental-analyzer/internal/config"
	"github.com/menta2k/dental-analyzer/internal/logging"
	"github.com/menta2k/dental-analyzer/internal/metrics"
	"github.com/menta2k/dental-analyzer/internal/server"
	"github.com/menta2k/dental-analyzer/internal/utils"
	"github.com/menta2k/dental-analyzer/pkg/analyzer"
	"github.com/menta2k/dental-analyzer/pkg/findings"
	"github.com/menta2k/dental-analyzer/pkg/processing"
	"github.com/menta2k/dental-analyzer/pkg/types"
)

type flags struct {
	in       string
	outDir   string
	cfgPath  string
	serve    bool
	writeCfg bool
	addr     string
	seed     uint64
	probe    string
	url      string
	model    string
	logLevel string
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("dental-analyzer", flag.ContinueOnError)

	fs.StringVar(&f.in, "in", "", "input image path, directory or URL (jpg/png/gif/webp)")
	fs.StringVar(&f.outDir, "out", "out", "output directory for reports and annotated images")
	fs.StringVar(&f.cfgPath, "config", "", "config file (json or yaml); defaults to "+config.GetConfigPath()+" when present")
	fs.BoolVar(&f.serve, "serve", false, "run the HTTP server instead of analyzing -in")
	fs.BoolVar(&f.writeCfg, "write-config", false, "write the effective config to -config (or the default path) and exit")
	fs.StringVar(&f.addr, "addr", "", "HTTP listen address (overrides config)")
	fs.Uint64Var(&f.seed, "seed", 0, "seed for finding synthesis, 0=random")
	fs.StringVar(&f.probe, "probe", "", "model probe: off, ollama or llamacpp (overrides config)")
	fs.StringVar(&f.url, "url", "", "probe backend URL (overrides config)")
	fs.StringVar(&f.model, "model", "", "probe model name (overrides config)")
	fs.StringVar(&f.logLevel, "log", "", "log level: debug, info, warn, error (overrides config)")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if !f.serve && !f.writeCfg && f.in == "" {
		fs.Usage()
		return f, errors.New("-in is required unless -serve or -write-config is set")
	}
	return f, nil
}

func loadConfig(f flags) (*config.Config, error) {
	path := f.cfgPath
	// the default path and a file about to be written may not exist yet
	optional := path == "" || f.writeCfg
	if path == "" {
		path = config.GetConfigPath()
	}
	if _, err := os.Stat(path); err != nil && optional {
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	switch f.probe {
	case "":
	case "off":
		cfg.Probe.Enabled = false
	case config.BackendOllama, config.BackendLlamaCPP:
		cfg.Probe.Enabled = true
		cfg.Probe.Backend = f.probe
	default:
		return nil, fmt.Errorf("unknown -probe value %q (use off, ollama or llamacpp)", f.probe)
	}
	if f.url != "" {
		cfg.Probe.URL = f.url
	}
	if f.model != "" {
		cfg.Probe.Model = f.model
	}
	if f.addr != "" {
		cfg.Server.Address = f.addr
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if f.writeCfg {
		path := f.cfgPath
		if path == "" {
			path = config.GetConfigPath()
		}
		if err := cfg.SaveToFile(path); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote config to %s\n", path)
		return nil
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	m := metrics.New()
	opts := []dentalanalyzer.Option{
		dentalanalyzer.WithLogger(logger),
		dentalanalyzer.WithObserver(m),
	}
	if f.seed != 0 {
		opts = append(opts, dentalanalyzer.WithRand(findings.NewLockedRand(f.seed, f.seed)))
	}

	a, err := dentalanalyzer.NewWithConfig(cfg, opts...)
	if err != nil {
		return err
	}

	if f.serve {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		return server.New(server.Params{
			Config:   cfg,
			Analyzer: a,
			Metrics:  m,
			Logger:   logger,
			Version:  dentalanalyzer.Version,
		}).Run(ctx)
	}

	inputs := []string{f.in}
	if utils.DirExists(f.in) {
		if inputs, err = utils.ListImageFiles(f.in); err != nil {
			return fmt.Errorf("list %s: %w", f.in, err)
		}
		if len(inputs) == 0 {
			return fmt.Errorf("no images found in %s", f.in)
		}
	}

	if err := utils.EnsureDir(f.outDir); err != nil {
		return err
	}

	var failed int
	for _, input := range inputs {
		report, err := a.AnalyzeFile(ctx, input)
		if err != nil {
			failed++
			logger.Error("input rejected", zap.String("input", input), zap.Error(err))
			continue
		}

		reportPath, imagePath, err := writeOutputs(f.outDir, report)
		if err != nil {
			return err
		}

		health := report.Result.OverallHealth
		fmt.Fprintf(stdout, "%s: score %d (%s), next checkup %s, %d finding(s)\n",
			input, health.Score, health.Status, health.NextCheckup, len(report.Result.Issues))
		fmt.Fprintf(stdout, "  wrote %s\n  wrote %s\n", reportPath, imagePath)
	}

	if failed == len(inputs) {
		return fmt.Errorf("no input could be analyzed")
	}
	return nil
}

// writeOutputs saves <name>_report.json and the processed image next to it
func writeOutputs(outDir string, report *types.Report) (string, string, error) {
	base := utils.ReportBaseName(report.FileName, report.ID)

	mediaType, data, err := analyzer.ParseDataURI(report.Result.ProcessedImageURL)
	if err != nil {
		return "", "", fmt.Errorf("processed image: %w", err)
	}
	imagePath := utils.GenerateOutputFilename(outDir, base, "_annotated", processing.Extension(mediaType))
	if err := os.WriteFile(imagePath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", imagePath, err)
	}

	js, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal report: %w", err)
	}
	reportPath := filepath.Join(outDir, base+"_report.json")
	if err := os.WriteFile(reportPath, js, 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", reportPath, err)
	}

	return reportPath, imagePath, nil
}
