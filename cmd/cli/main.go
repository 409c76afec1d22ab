package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"afreeca-dl/internal/config"
	"afreeca-dl/internal/credentials"
	"afreeca-dl/internal/export"
	"afreeca-dl/internal/monitor"
	"afreeca-dl/internal/platform"
	"afreeca-dl/internal/registry"
	"afreeca-dl/internal/server"
	"afreeca-dl/pkg/models"
)

var (
	configPath   string
	verbose      bool
	jsonOutput   bool
	pageLimit    int
	exportFormat string
	outputPath   string
	resolveItems bool
	username     string
	password     string
	forceInit    bool
)

// app holds what every command needs to resolve URLs
type app struct {
	config   *models.Config
	logger   zerolog.Logger
	registry *registry.Registry
	afreeca  *platform.AfreecaTV
}

func loadApp() (*app, error) {
	configManager := config.NewManager()
	cfg, err := configManager.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := configManager.GetLogger()
	reg := registry.NewRegistry(logger)
	afreeca, err := reg.RegisterDefaultExtractors(cfg, monitor.Default())
	if err != nil {
		return nil, err
	}

	return &app{config: cfg, logger: logger, registry: reg, afreeca: afreeca}, nil
}

func (a *app) Close() {
	if a.afreeca != nil {
		a.afreeca.Close()
	}
}

// extract resolves url with the matching extractor
func (a *app) extract(ctx context.Context, url string) (*models.MediaRecord, error) {
	extractor, err := a.registry.GetExtractorForURL(url)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Str("extractor", extractor.GetName()).Str("url", url).Msg("Resolving")
	return extractor.Extract(ctx, url)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var rootCmd = &cobra.Command{
	Use:   "afreeca-dl",
	Short: "Resolve AfreecaTV videos, live streams and catalogs",
	Long: `afreeca-dl resolves AfreecaTV URLs into playable stream sources.

Supported URLs:
- VOD player pages (vod.afreecatv.com/player/<id>)
- Live channels (play.afreecatv.com/<handle>)
- Channel catalogs (bj.afreecatv.com/<handle>/vods/<category>)`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var infoCmd = &cobra.Command{
	Use:   "info [url]",
	Short: "Show metadata for a VOD, live stream or catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		record, err := a.extract(ctx, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(record)
		}
		printRecord(os.Stdout, record, 0)
		return nil
	},
}

var formatsCmd = &cobra.Command{
	Use:   "formats [url]",
	Short: "List the stream sources of a VOD or live stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		record, err := a.extract(ctx, args[0])
		if err != nil {
			return err
		}

		sources := collectSources(record)
		if jsonOutput {
			return printJSON(sources)
		}
		if len(sources) == 0 {
			fmt.Println("No formats found")
			return nil
		}
		printSources(os.Stdout, sources)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list [catalog-url]",
	Short: "List the videos of a channel catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		record, err := a.extract(ctx, args[0])
		if err != nil {
			return err
		}
		if record.Pages == nil {
			return fmt.Errorf("%s is not a catalog URL", args[0])
		}

		entries, err := export.CollectEntries(ctx, record.Pages, pageLimit)
		if err != nil {
			return fmt.Errorf("error listing catalog: %w", err)
		}

		if jsonOutput {
			return printJSON(entries)
		}

		fmt.Println(titleStyle.Render(fmt.Sprintf("%s (%d)", record.Title, len(entries))))
		for i, entry := range entries {
			fmt.Printf("%4d. %s\n", i+1, entry.URL)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [url...]",
	Short: "Resolve URLs and export the records to csv, xlsx, json or txt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		format := lo.Ternary(exportFormat != "", exportFormat, a.config.Export.Format)
		limit := lo.Ternary(cmd.Flags().Changed("pages"), pageLimit, a.config.Export.PageLimit)
		exportAs := export.ExportFormat(strings.ToLower(format))
		if !lo.Contains(export.GetSupportedFormats(), exportAs) {
			return fmt.Errorf("unsupported format: %s", format)
		}

		ctx, cancel := signalContext()
		defer cancel()

		var (
			records []*models.MediaRecord
			title   string
		)
		for i, url := range args {
			top, found, err := a.resolveForExport(ctx, url, limit)
			if err != nil {
				return err
			}
			if i == 0 {
				title = lo.Ternary(top.Title != "", top.Title, top.ID)
			}
			records = append(records, found...)
		}

		path := outputPath
		if path == "" {
			path = export.DefaultFilePath(lo.Ternary(len(args) == 1, title, ""), exportAs)
		}

		exportConfig := export.ExportConfig{Format: exportAs, FilePath: path}
		if err := export.ValidateConfig(exportConfig); err != nil {
			return err
		}
		if err := export.NewDataExporter(exportConfig).ExportRecords(records); err != nil {
			return fmt.Errorf("error exporting records: %w", err)
		}

		fmt.Println(okStyle.Render(fmt.Sprintf("Exported %d records to %s", len(records), path)))
		return nil
	},
}

// resolveForExport resolves url, expanding catalogs into their entries.
// It returns the top level record and the records to export. With
// --resolve each catalog entry is resolved as well; entries that fail are
// reported and skipped.
func (a *app) resolveForExport(ctx context.Context, url string, limit int) (*models.MediaRecord, []*models.MediaRecord, error) {
	record, err := a.extract(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	if record.Pages == nil {
		return record, []*models.MediaRecord{record}, nil
	}

	entries, err := export.CollectEntries(ctx, record.Pages, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("error listing catalog: %w", err)
	}
	if !resolveItems {
		return record, entries, nil
	}

	var resolved []*models.MediaRecord
	for _, entry := range entries {
		r, err := a.extract(ctx, entry.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Skipping %s: %v", entry.URL, err)))
			continue
		}
		resolved = append(resolved, r)
	}
	return record, resolved, nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify AfreecaTV credentials and store them in the system keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		if username == "" || password == "" {
			return errors.New("--username and --password are required")
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if a.afreeca == nil {
			return errors.New("afreecatv is disabled in the configuration")
		}

		ctx, cancel := signalContext()
		defer cancel()

		if err := a.afreeca.Client.Login(ctx, username, password); err != nil {
			return err
		}
		if err := credentials.Save(credentials.Credentials{Username: username, Password: password}); err != nil {
			return err
		}

		fmt.Println(okStyle.Render("Logged in as " + username))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored AfreecaTV credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credentials.Delete(); err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				fmt.Println("No stored credentials")
				return nil
			}
			return err
		}
		fmt.Println("Credentials removed")
		return nil
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		mon := monitor.NewMonitor(monitor.Default(), a.logger)
		srv, err := server.NewServer(a.config, a.registry, mon, a.logger)
		if err != nil {
			return err
		}

		fmt.Printf("Server listening on http://%s:%d\n", a.config.Server.Host, a.config.Server.Port)
		fmt.Println("Press Ctrl+C to stop the server")
		if err := srv.Run(); err != nil {
			return fmt.Errorf("error running server: %w", err)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := configPath
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			dir = filepath.Join(home, ".afreeca-dl")
		}

		path, err := config.WriteDefault(dir, forceInit)
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render("Configuration written to " + path))
		return nil
	},
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configManager := config.NewManager()
		if _, err := configManager.Load(configPath); err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		settings := configManager.Settings()
		if jsonOutput {
			return printJSON(settings)
		}

		fmt.Println(titleStyle.Render("Current Configuration"))
		field(os.Stdout, "File", lo.Ternary(configManager.ConfigFileUsed() != "", configManager.ConfigFileUsed(), "(defaults)"))

		sections := lo.Keys(settings)
		sort.Strings(sections)
		for _, section := range sections {
			values, ok := settings[section].(map[string]interface{})
			if !ok {
				continue
			}
			fmt.Printf("\n%s\n", section)
			keys := lo.Keys(values)
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Printf("  %-22s %v\n", key, values[key])
			}
		}
		return nil
	},
}

var extractorsCmd = &cobra.Command{
	Use:   "extractors",
	Short: "List the supported extractors and URL patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, info := range a.registry.GetExtractorInfo() {
			fmt.Println(titleStyle.Render(info.Name))
			for _, pattern := range info.Patterns {
				fmt.Printf("  %s\n", pattern)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")

	listCmd.Flags().IntVarP(&pageLimit, "limit", "l", 0, "Maximum catalog pages to read, 0 reads all")

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "Export format (csv, xlsx, json, txt)")
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file")
	exportCmd.Flags().IntVarP(&pageLimit, "pages", "p", 0, "Maximum catalog pages to read, 0 reads all")
	exportCmd.Flags().BoolVar(&resolveItems, "resolve", false, "Resolve every catalog entry")

	loginCmd.Flags().StringVarP(&username, "username", "u", "", "AfreecaTV username")
	loginCmd.Flags().StringVarP(&password, "password", "P", os.Getenv(config.EnvPrefix+"_AFREECATV_PASSWORD"), "AfreecaTV password")

	initConfigCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(extractorsCmd)
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(initConfigCmd)
	configCmd.AddCommand(showConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		if models.IsExpected(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
