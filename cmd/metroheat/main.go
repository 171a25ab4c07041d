package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"metroheat/amenity"
	"metroheat/census"
	"metroheat/config"
	"metroheat/detail"
	"metroheat/energy"
	"metroheat/geo"
	"metroheat/listings"
	"metroheat/models"
	"metroheat/pipeline"
)

var soldWindows = map[string]listings.SoldWithin{
	"1wk": listings.SoldLastWeek,
	"1mo": listings.SoldLastMonth,
	"3mo": listings.SoldLast3Months,
	"6mo": listings.SoldLast6Months,
	"1yr": listings.SoldLastYear,
	"2yr": listings.SoldLast2Years,
	"3yr": listings.SoldLast3Years,
	"5yr": listings.SoldLast5Years,
}

var saleStatuses = map[string]listings.Status{
	"active":     listings.StatusActive,
	"comingsoon": listings.StatusComingSoon,
	"contingent": listings.StatusContingent,
	"pending":    listings.StatusPending,
}

func main() {
	defaultCfg := config.DefaultConfig()
	referenceDefault := defaultCfg.ReferencePath
	if value, ok := config.EnvString("METROHEAT_REFERENCE"); ok {
		referenceDefault = value
	}
	outputDefault := defaultCfg.OutputDir
	if value, ok := config.EnvString("METROHEAT_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("METROHEAT_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	metro := flag.String("metro", "", "Metro area to collect, e.g. \"Hartford-East Hartford-Middletown, CT\" (use TEST for a fixed three-ZIP run)")
	reference := flag.String("reference", referenceDefault, "Path to the ZIP/metro reference table")
	outputDir := flag.String("output", outputDefault, "Output directory")
	cacheDir := flag.String("cache", defaultCfg.CacheDir, "Cache directory for raw results and collaborator data")
	rulesPath := flag.String("rules", "", "Override path for the fuel rule table (YAML)")
	delayMs := flag.Int("delay", int(defaultCfg.MinDelay/time.Millisecond), "Politeness delay floor before each request (milliseconds)")
	randomDelayMs := flag.Int("random-delay", int(defaultCfg.RandomDelay/time.Millisecond), "Random jitter added to delay (milliseconds)")
	propertyType := flag.String("property-type", defaultCfg.PropertyTypeTarget, "Property type to keep from search results")
	maxResults := flag.Int("max-results", defaultCfg.MaxResultsPerZIP, "Maximum rows per ZIP search")
	useCached := flag.Bool("use-cached", false, "Reuse the combined raw results of a previous run instead of searching")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, jsonl, or dual")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	searchURL := flag.String("base-url", defaultCfg.SearchBaseURL, "Listings source base URL")
	detailURL := flag.String("detail-url", defaultCfg.DetailBaseURL, "Listing detail base URL")

	soldWithin := flag.String("sold-within", "5yr", "Sold-listing window: 1wk, 1mo, 3mo, 6mo, 1yr, 2yr, 3yr, 5yr")
	forSale := flag.Bool("for-sale", false, "Search active listings instead of sold ones")
	statuses := flag.String("statuses", "active", "Comma-separated statuses for -for-sale searches")
	minYearBuilt := flag.Int("min-year-built", 0, "Minimum year built (0 = no bound)")
	maxYearBuilt := flag.Int("max-year-built", 0, "Maximum year built (0 = no bound)")
	minPrice := flag.Int64("min-price", 0, "Minimum price (0 = no bound)")
	maxPrice := flag.Int64("max-price", 0, "Maximum price (0 = no bound)")
	minSqft := flag.Int("min-sqft", 0, "Minimum square footage, source ladder values only (0 = no bound)")
	maxSqft := flag.Int("max-sqft", 0, "Maximum square footage, source ladder values only (0 = no bound)")
	minStories := flag.Int("min-stories", 0, "Minimum stories (0 = no bound)")

	fuelPrices := flag.Bool("fuel-prices", false, "Report seasonal fuel prices for the metro's states after collection (needs EIA_API_KEY)")
	censusYear := flag.Int("census-year", 0, "Report ACS heating-fuel shares for the metro's ZIPs in this year (needs CENSUS_API_KEY, 0 = skip)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if *metro == "" {
		fmt.Fprintln(os.Stderr, "missing required -metro flag")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.DefaultConfig()
	cfg.SearchBaseURL = *searchURL
	cfg.DetailBaseURL = *detailURL
	cfg.ReferencePath = *reference
	cfg.OutputDir = *outputDir
	cfg.CacheDir = *cacheDir
	cfg.MinDelay = time.Duration(*delayMs) * time.Millisecond
	cfg.RandomDelay = time.Duration(*randomDelayMs) * time.Millisecond
	cfg.PropertyTypeTarget = *propertyType
	cfg.MaxResultsPerZIP = *maxResults
	cfg.UseCachedSearch = *useCached
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	cfg.LoadSecrets()

	filters, err := buildFilters(*soldWithin, *forSale, *statuses,
		*minYearBuilt, *maxYearBuilt, *minPrice, *maxPrice, *minSqft, *maxSqft, *minStories)
	if err != nil {
		slog.Error("invalid search filters", slog.Any("error", err))
		os.Exit(1)
	}

	resolver, err := loadResolver(cfg, *metro)
	if err != nil {
		slog.Error("loading reference table", slog.Any("error", err))
		os.Exit(1)
	}

	var rules *amenity.Rules
	if *rulesPath != "" {
		rules, err = amenity.LoadRules(*rulesPath)
		if err != nil {
			slog.Error("loading rule table", slog.Any("error", err))
			os.Exit(1)
		}
	}

	searchClient, err := listings.NewClient(cfg, listings.WithMetrics(listings.NewMetrics()))
	if err != nil {
		slog.Error("initialising search client", slog.Any("error", err))
		os.Exit(1)
	}
	detailClient, err := detail.NewClient(cfg)
	if err != nil {
		slog.Error("initialising detail client", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing the current unit")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && searchClient.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(searchClient.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting collection",
		slog.String("metro", *metro),
		slog.String("source", cfg.SearchBaseURL),
		slog.Bool("use_cached", cfg.UseCachedSearch),
	)

	m := pipeline.NewMetro(cfg, resolver, searchClient, detailClient, rules)
	report, runErr := m.Run(ctx, *metro, filters)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(report, cfg.OutputDir)

	if runErr == nil && *fuelPrices {
		reportFuelPrices(ctx, cfg, resolver, *metro)
	}
	if runErr == nil && *censusYear != 0 {
		reportCensusShares(ctx, cfg, resolver, *metro, *censusYear)
	}

	if runErr != nil {
		slog.Error("collection failed", slog.Any("error", runErr))
		os.Exit(1)
	}
}

// reportFuelPrices logs last season's average delivered-heat price for each
// fuel with coverage in the metro's states.
func reportFuelPrices(ctx context.Context, cfg *config.Config, resolver *geo.Resolver, metro string) {
	client, err := energy.NewClient(cfg)
	if err != nil {
		slog.Warn("fuel price report skipped", slog.Any("error", err))
		return
	}

	seasonYear := time.Now().Year() - 1
	fuels := []energy.FuelType{energy.Electricity, energy.NaturalGas, energy.HeatingOil, energy.Propane}
	for _, state := range resolver.StatesForMetro(metro) {
		for _, fuel := range fuels {
			if !energy.HasSeries(fuel, state) {
				continue
			}
			price, err := client.SeasonAveragePrice(ctx, fuel, state, seasonYear)
			if err != nil {
				slog.Warn("fuel price unavailable",
					slog.String("state", state),
					slog.String("fuel", string(fuel)),
					slog.Any("error", err),
				)
				continue
			}
			slog.Info("seasonal fuel price",
				slog.String("state", state),
				slog.String("fuel", string(fuel)),
				slog.Int("season", seasonYear),
				slog.String("usd_per_mmbtu", fmt.Sprintf("%.2f", price)),
			)
		}
	}
}

// reportCensusShares logs ACS house-heating-fuel totals summed over the
// metro's ZCTAs, as an external reference for the collected distribution.
func reportCensusShares(ctx context.Context, cfg *config.Config, resolver *geo.Resolver, metro string, year int) {
	client, err := census.NewClient(cfg)
	if err != nil {
		slog.Warn("census report skipped", slog.Any("error", err))
		return
	}

	table, err := client.Table(ctx, census.HeatingFuelTable, year)
	if err != nil {
		slog.Warn("census report skipped", slog.Any("error", err))
		return
	}
	labels, err := client.Labels(ctx, census.HeatingFuelTable, year)
	if err != nil {
		slog.Warn("census labels unavailable", slog.Any("error", err))
		labels = map[string]string{}
	}

	totals := make(map[string]int64)
	for _, zip := range resolver.ZIPCodesForMetro(metro) {
		for _, variable := range table.Variables {
			if !strings.HasSuffix(variable, "E") || !strings.HasPrefix(variable, census.HeatingFuelTable) {
				continue
			}
			cell, ok := table.Value(zip, variable)
			if !ok {
				continue
			}
			n, err := strconv.ParseInt(cell, 10, 64)
			if err != nil {
				continue
			}
			totals[variable] += n
		}
	}

	for variable, total := range totals {
		if total == 0 {
			continue
		}
		label := labels[variable]
		if label == "" {
			label = variable
		}
		slog.Info("census heating fuel",
			slog.String("category", label),
			slog.Int64("households", total),
		)
	}
}

func buildFilters(soldWithin string, forSale bool, statuses string,
	minYearBuilt, maxYearBuilt int, minPrice, maxPrice int64, minSqft, maxSqft, minStories int) (*listings.Filters, error) {

	filters := &listings.Filters{
		PropertyTypes: []listings.PropertyType{listings.PropertyHouse},
		MinYearBuilt:  minYearBuilt,
		MaxYearBuilt:  maxYearBuilt,
		MinPrice:      minPrice,
		MaxPrice:      maxPrice,
		MinSqft:       listings.Sqft(minSqft),
		MaxSqft:       listings.Sqft(maxSqft),
		MinStories:    listings.Stories(minStories),
	}

	if forSale {
		filters.Sort = listings.SortNewestListed
		var parsed []listings.Status
		for _, name := range strings.Split(statuses, ",") {
			status, ok := saleStatuses[strings.TrimSpace(strings.ToLower(name))]
			if !ok {
				return nil, fmt.Errorf("unknown status %q", name)
			}
			parsed = append(parsed, status)
		}
		filters.Scope = listings.ForSale(parsed...)
	} else {
		window, ok := soldWindows[strings.TrimSpace(strings.ToLower(soldWithin))]
		if !ok {
			return nil, fmt.Errorf("unknown sold-within window %q", soldWithin)
		}
		filters.Sort = listings.SortMostRecentlySold
		filters.Scope = listings.Sold(window)
	}

	if err := filters.Validate(); err != nil {
		return nil, err
	}
	return filters, nil
}

// loadResolver reads the reference table, except for the TEST metro, which
// resolves from a built-in ZIP set and needs no table on disk.
func loadResolver(cfg *config.Config, metro string) (*geo.Resolver, error) {
	if metro == geo.TestMetro {
		return geo.Parse(strings.NewReader("ZIP,METRO_NAME,STATE_ID,LSAD\n"))
	}
	return geo.Load(cfg.ReferencePath)
}

func printSummary(report *models.RunReport, outputDir string) {
	if report == nil {
		return
	}
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Collection finished: %s\n", report.Metro)
	fmt.Printf("  ZIPs attempted:  %d\n", report.ZIPsAttempted)
	fmt.Printf("  ZIPs with data:  %d\n", report.ZIPsWithData)
	fmt.Printf("  ZIPs empty:      %d\n", report.ZIPsEmpty)
	fmt.Printf("  ZIPs failed:     %d\n", report.ZIPsFailed)
	fmt.Printf("  Listings:        %d\n", report.ListingsProcessed)
	fmt.Printf("  Unknown heating: %d\n", report.ListingsUnknown)
	fmt.Printf("  No fuel match:   %d\n", report.ListingsNoMatch)
	if len(report.FailedZIPs) > 0 {
		fmt.Printf("  Failed ZIPs:     %v\n", report.FailedZIPs)
	}
	if len(report.ErrorsByType) > 0 {
		fmt.Printf("  Error types:     %v\n", report.ErrorsByType)
	}
	fmt.Printf("  Duration:        %v\n", report.EndTime.Sub(report.StartTime).Round(time.Second))
	fmt.Printf("  Output dir:      %s\n", outputDir)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
