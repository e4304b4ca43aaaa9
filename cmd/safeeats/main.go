package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/safeeats/backend/internal/domain"
	"github.com/safeeats/backend/internal/infrastructure/cache"
	"github.com/safeeats/backend/internal/infrastructure/detection"
	"github.com/safeeats/backend/internal/infrastructure/openfoodfacts"
	"github.com/safeeats/backend/internal/infrastructure/profilefile"
	"github.com/safeeats/backend/internal/usecase"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// Exit codes
const (
	exitUnsafe   = 2
	exitInput    = 3
	exitUpstream = 4
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// scanFlags holds the flags shared by analyze and barcode.
type scanFlags struct {
	profilePath  string
	format       string
	failOnUnsafe bool
	detectionURL string
	productURL   string
	maxLength    int
	timeout      time.Duration
	debug        bool
}

// analyzeFlags holds the parsed flags for the analyze command.
type analyzeFlags struct {
	scanFlags
	text string
	file string
}

func main() {
	root := newRootCmd(os.Stdin, os.Stdout)

	if err := root.Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "safeeats",
		Short:         "Check food labels against an allergen profile",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)

	root.AddCommand(analyzeCommand(), barcodeCommand(), allergensCommand())
	return root
}

func addScanFlags(cmd *cobra.Command, flags *scanFlags) {
	f := cmd.Flags()
	f.StringVar(&flags.profilePath, "profile", "", "Allergen profile file (YAML or JSON)")
	f.StringVar(&flags.format, "format", "text", "Output format: text or json")
	f.BoolVar(&flags.failOnUnsafe, "fail-on-unsafe", false, "Exit 2 when the verdict is UNSAFE")
	f.StringVar(&flags.detectionURL, "detection-url", "", "ML detection service base URL (disabled when empty)")
	f.StringVar(&flags.productURL, "product-url", openfoodfacts.DefaultBaseURL, "OpenFoodFacts base URL")
	f.IntVar(&flags.maxLength, "max-length", 10000, "Maximum label text length in characters")
	f.DurationVar(&flags.timeout, "timeout", 30*time.Second, "Overall timeout for remote lookups")
	f.BoolVar(&flags.debug, "debug", false, "Log layer decisions and client requests")
}

func analyzeCommand() *cobra.Command {
	var flags analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze label text from --text, --file or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	addScanFlags(cmd, &flags.scanFlags)
	cmd.Flags().StringVar(&flags.text, "text", "", "Label text to analyze")
	cmd.Flags().StringVar(&flags.file, "file", "", "Read label text from this file")
	return cmd
}

func barcodeCommand() *cobra.Command {
	var flags scanFlags
	cmd := &cobra.Command{
		Use:   "barcode <code>",
		Short: "Look a product up by barcode and analyze it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBarcode(cmd.Context(), args[0], flags, cmd.OutOrStdout())
		},
	}

	addScanFlags(cmd, &flags)
	return cmd
}

func allergensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "allergens",
		Short: "List the allergens recognized without a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range usecase.CommonAllergens() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func runAnalyze(ctx context.Context, flags analyzeFlags, stdin io.Reader, out io.Writer) error {
	if err := validateFormat(flags.format); err != nil {
		return err
	}

	text, err := readInput(flags, stdin)
	if err != nil {
		return err
	}

	profile, err := loadProfile(flags.profilePath)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, flags.timeout)
	defer cancel()

	service := newScanService(flags.scanFlags)
	result, err := service.ScanText(ctx, &domain.ScanTextRequest{Text: text, Profile: profile})
	if err != nil {
		return scanError(err)
	}

	return finish(out, result, flags.scanFlags)
}

func runBarcode(ctx context.Context, barcode string, flags scanFlags, out io.Writer) error {
	if err := validateFormat(flags.format); err != nil {
		return err
	}

	profile, err := loadProfile(flags.profilePath)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, flags.timeout)
	defer cancel()

	service := newScanService(flags)
	result, err := service.ScanBarcode(ctx, &domain.ScanBarcodeRequest{Barcode: barcode, Profile: profile})
	if err != nil {
		return scanError(err)
	}

	return finish(out, result, flags)
}

// newScanService wires a scan service for a single CLI run
func newScanService(flags scanFlags) *usecase.ScanService {
	var detector domain.DetectionClient
	if flags.detectionURL != "" {
		detector = detection.NewClient(flags.detectionURL, detection.Config{
			Timeout:    flags.timeout,
			MaxRetries: 1,
			Debug:      flags.debug,
		})
	}

	products := openfoodfacts.NewClient(flags.productURL, "SafeEats-CLI/"+version, flags.timeout)

	return usecase.NewScanService(
		cache.NewMemoryCache(time.Minute),
		detector,
		products,
		nil,
		usecase.ScanServiceConfig{
			MaxTextLength:      flags.maxLength,
			EnableDebugLogging: flags.debug,
		},
	)
}

// readInput picks --text, then --file, then stdin
func readInput(flags analyzeFlags, stdin io.Reader) (string, error) {
	switch {
	case flags.text != "" && flags.file != "":
		return "", codeError(exitInput, "--text and --file are mutually exclusive")
	case flags.text != "":
		return flags.text, nil
	case flags.file != "":
		data, err := os.ReadFile(flags.file)
		if err != nil {
			return "", codeError(exitInput, "reading label file: %s", err)
		}
		return string(data), nil
	}

	if stdin == nil {
		return "", codeError(exitInput, "no label text: use --text, --file or stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", codeError(exitInput, "reading stdin: %s", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", codeError(exitInput, "no label text: use --text, --file or stdin")
	}
	return string(data), nil
}

func loadProfile(path string) ([]domain.AllergenProfileEntry, error) {
	if path == "" {
		return nil, nil
	}
	profile, err := profilefile.Load(path)
	if err != nil {
		return nil, codeError(exitInput, "loading profile: %s", err)
	}
	return profile, nil
}

func validateFormat(format string) error {
	if format != "text" && format != "json" {
		return codeError(exitInput, "--format must be text or json, got %q", format)
	}
	return nil
}

// scanError maps scan failures to exit codes
func scanError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrTextTooLong),
		errors.Is(err, domain.ErrInvalidBarcode),
		errors.Is(err, domain.ErrInvalidProfile),
		errors.Is(err, domain.ErrProductNotFound):
		return codeError(exitInput, "%s", err)
	case errors.Is(err, domain.ErrProductLookupFailure):
		return codeError(exitUpstream, "%s", err)
	default:
		return err
	}
}

func finish(out io.Writer, result *domain.ScanResult, flags scanFlags) error {
	if err := render(out, result, flags.format); err != nil {
		return err
	}
	if flags.failOnUnsafe && result.Classification == domain.ClassificationUnsafe {
		return codeError(exitUnsafe, "verdict is %s", result.Classification)
	}
	return nil
}

func render(out io.Writer, result *domain.ScanResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Verdict: %s\n", result.Classification)
	if result.Product != nil {
		fmt.Fprintf(&b, "Product: %s", result.Product.Name)
		if result.Product.Brand != "" {
			fmt.Fprintf(&b, " (%s)", result.Product.Brand)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Layers: %s\n", strings.Join(result.Layers, ", "))
	if result.Precautionary {
		b.WriteString("Precautionary labeling present\n")
	}
	if result.Warning != "" {
		fmt.Fprintf(&b, "Warning: %s\n", result.Warning)
	}
	if len(result.Matches) == 0 {
		b.WriteString("No allergens found\n")
	}
	for _, m := range result.Matches {
		fmt.Fprintf(&b, "  - %s [%s %.2f]", m.Name, m.Source, m.Confidence)
		if m.Snippet != "" {
			fmt.Fprintf(&b, " %q", m.Snippet)
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(out, b.String())
	return err
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
