package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/promptforge/promptforge/library"
	"github.com/promptforge/promptforge/lora"
	"github.com/promptforge/promptforge/metadata"
	"github.com/promptforge/promptforge/server"
	"github.com/promptforge/promptforge/workflow"
)

var (
	appVersion = "0.1.0"

	lenient    bool
	outDir     string
	showParams bool
	jobs       int

	serveAddr string
	dataDir   string
	lorasDir  string
	inputDir  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "promptforge",
	Short: "Extract and manage generation prompts embedded in media files",
	Long: `Promptforge reads the workflow metadata that image generators embed in
PNG, JPEG, WebP, WebM and MP4 files, harvests prompts and LoRA stacks from
it, and serves a prompt library over HTTP and websocket.`,
}

var extractCmd = &cobra.Command{
	Use:   "extract FILE...",
	Short: "Extract embedded prompt metadata from media files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the prompt manager server",
	RunE:  runServe,
}

var lorasCmd = &cobra.Command{
	Use:   "loras",
	Short: "Inspect the LoRA directory",
}

var lorasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List LoRA files found under the LoRA directory",
	Args:  cobra.NoArgs,
	RunE:  runLorasList,
}

var lorasCheckCmd = &cobra.Command{
	Use:   "check NAME...",
	Short: "Resolve LoRA names against the directory, fuzzily",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLorasCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(appVersion)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lorasCmd)
	rootCmd.AddCommand(versionCmd)
	lorasCmd.AddCommand(lorasListCmd)
	lorasCmd.AddCommand(lorasCheckCmd)

	extractCmd.Flags().BoolVar(&lenient, "lenient", false, "keep scanning video containers past unparseable comment tags")
	extractCmd.Flags().StringVarP(&outDir, "out", "o", "", "write one JSON file per input into this directory instead of stdout")
	extractCmd.Flags().BoolVar(&showParams, "params", false, "include the raw generation parameter text in the output")
	extractCmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "number of files to process concurrently")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8189", "listen address")
	serveCmd.Flags().BoolVar(&lenient, "lenient", false, "keep scanning video containers past unparseable comment tags")
	serveCmd.Flags().StringVar(&dataDir, "data", "data", "directory for the prompt library files")
	serveCmd.Flags().StringVar(&lorasDir, "loras", "", "LoRA model directory")
	serveCmd.Flags().StringVar(&inputDir, "input", "input", "directory served to the extractor routes")

	lorasCmd.PersistentFlags().StringVar(&lorasDir, "loras", "", "LoRA model directory")
}

// extractOutput is the per-file result written by the extract command.
type extractOutput struct {
	File       string          `json:"file"`
	Source     metadata.Source `json:"source_format,omitempty"`
	Positive   string          `json:"positive_prompt"`
	Negative   string          `json:"negative_prompt"`
	LorasA     []workflow.Lora `json:"loras_a,omitempty"`
	LorasB     []workflow.Lora `json:"loras_b,omitempty"`
	Parameters string          `json:"parameters,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	var opts []metadata.Option
	if lenient {
		opts = append(opts, metadata.WithScanMode(metadata.ScanKeepGoing))
	}

	var bar *progressbar.ProgressBar
	if outDir != "" && len(args) > 1 {
		bar = progressbar.Default(int64(len(args)), "extracting")
	}

	results := make([]extractOutput, len(args))
	g, _ := errgroup.WithContext(cmd.Context())
	g.SetLimit(jobs)
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			results[i] = extractFile(path, opts)
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
		if err := writeResult(res); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files yielded no metadata", failed, len(args))
	}
	return nil
}

func extractFile(path string, opts []metadata.Option) extractOutput {
	out := extractOutput{File: path}

	kind := metadata.KindForPath(path)
	if kind == "" {
		out.Error = "unsupported file type"
		return out
	}
	data, err := os.ReadFile(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	meta := metadata.Extract(data, kind, opts...)
	if meta == nil {
		out.Error = "no metadata found"
		return out
	}

	out.Source = meta.Source
	result := workflow.ParseRaw(meta.Prompt, meta.Workflow)
	if meta.ParsedParameters != nil && result.PositivePrompt == "" {
		result.PositivePrompt = meta.ParsedParameters.Prompt
		result.NegativePrompt = meta.ParsedParameters.NegativePrompt
		for _, l := range meta.ParsedParameters.Loras {
			result.LorasA = append(result.LorasA, workflow.Lora{
				Name:          l.Name,
				ModelStrength: l.ModelStrength,
				ClipStrength:  l.ClipStrength,
				Active:        true,
			})
		}
	}
	out.Positive = result.PositivePrompt
	out.Negative = result.NegativePrompt
	out.LorasA = result.LorasA
	out.LorasB = result.LorasB
	if showParams {
		out.Parameters = meta.Parameters
	}
	return out
}

func writeResult(res extractOutput) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if outDir == "" {
		fmt.Println(string(data))
		return nil
	}
	base := filepath.Base(res.File)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
	return os.WriteFile(filepath.Join(outDir, name), append(data, '\n'), 0o644)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	store, err := library.Open(filepath.Join(dataDir, "prompts.json"))
	if err != nil {
		return fmt.Errorf("opening prompt library: %w", err)
	}
	advanced, err := library.OpenAdvanced(filepath.Join(dataDir, "prompts_advanced.json"))
	if err != nil {
		return fmt.Errorf("opening advanced library: %w", err)
	}

	registry := lora.NewRegistry(lorasDir)
	if lorasDir != "" {
		if err := registry.Refresh(); err != nil {
			slog.Warn("scanning LoRA directory", "dir", lorasDir, "error", err)
		}
	}

	srv := server.New(server.Config{
		Addr:     serveAddr,
		Store:    store,
		Advanced: advanced,
		Registry: registry,
		InputDir: inputDir,
		Lenient:  lenient,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx)
}

func openRegistry() (*lora.Registry, error) {
	if lorasDir == "" {
		return nil, fmt.Errorf("--loras is required")
	}
	registry := lora.NewRegistry(lorasDir)
	if err := registry.Refresh(); err != nil {
		return nil, err
	}
	return registry, nil
}

func runLorasList(cmd *cobra.Command, args []string) error {
	registry, err := openRegistry()
	if err != nil {
		return err
	}
	files := registry.Files()
	sort.Strings(files)
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}

func runLorasCheck(cmd *cobra.Command, args []string) error {
	registry, err := openRegistry()
	if err != nil {
		return err
	}
	missing := 0
	for _, name := range args {
		path, ok := registry.Resolve(name)
		if ok {
			fmt.Printf("%s\t%s\n", name, path)
		} else {
			missing++
			fmt.Printf("%s\tnot found\n", name)
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d names did not resolve", missing, len(args))
	}
	return nil
}
