package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"metroheat/amenity"
	"metroheat/config"
	"metroheat/detail"
	"metroheat/geo"
	"metroheat/listings"
	"metroheat/models"
)

// Searcher performs the bulk search for one ZIP code.
type Searcher interface {
	Search(ctx context.Context, zip string, filters *listings.Filters) ([]models.ListingRecord, error)
}

// AmenityFetcher retrieves the amenity tables for one listing reference.
type AmenityFetcher interface {
	AmenityGroups(ctx context.Context, ref string) ([]amenity.Group, error)
}

// Metro drives a full collection run for one metro area: resolve its ZIP
// codes, search each ZIP, attach heating categories per listing, and persist
// one output file per ZIP. Units fail independently, format errors included.
// A run aborts only when every unit in a phase fails with a format change,
// which means the source layout moved rather than a few pages misbehaving.
type Metro struct {
	cfg         *config.Config
	resolver    *geo.Resolver
	searcher    Searcher
	fetcher     AmenityFetcher
	extractor   *amenity.Extractor
	categorizer *amenity.Categorizer
}

// NewMetro builds the orchestrator. A nil rules argument selects the embedded
// rule table.
func NewMetro(cfg *config.Config, resolver *geo.Resolver, searcher Searcher, fetcher AmenityFetcher, rules *amenity.Rules) *Metro {
	return &Metro{
		cfg:         cfg,
		resolver:    resolver,
		searcher:    searcher,
		fetcher:     fetcher,
		extractor:   amenity.NewExtractor(rules),
		categorizer: amenity.NewCategorizer(rules),
	}
}

// Run executes the pipeline for one metro. The returned report is valid even
// when an error is returned alongside it; it covers everything processed up
// to the stopping point.
func (m *Metro) Run(ctx context.Context, metro string, filters *listings.Filters) (*models.RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	report := &models.RunReport{
		Metro:        metro,
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	defer func() { report.EndTime = time.Now() }()

	zips := m.resolver.ZIPCodesForMetro(metro)
	if len(zips) == 0 {
		return report, fmt.Errorf("no ZIP codes for metro %q", metro)
	}
	slog.Info("metro resolved",
		slog.String("metro", metro),
		slog.Int("zips", len(zips)),
	)

	byZIP, err := m.searchPhase(ctx, metro, zips, filters, report)
	if err != nil {
		return report, err
	}

	if err := m.extractPhase(ctx, byZIP, report); err != nil {
		return report, err
	}

	if err := m.persistPhase(metro, zips, byZIP, report); err != nil {
		return report, err
	}

	slog.Info("metro run complete",
		slog.String("metro", metro),
		slog.Int("zips_with_data", report.ZIPsWithData),
		slog.Int("zips_empty", report.ZIPsEmpty),
		slog.Int("zips_failed", report.ZIPsFailed),
		slog.Int("listings", report.ListingsProcessed),
	)
	return report, nil
}

// searchPhase collects raw rows per ZIP, either from the listings source or
// from the combined raw-results file of a previous run.
func (m *Metro) searchPhase(ctx context.Context, metro string, zips []string, filters *listings.Filters, report *models.RunReport) (map[string][]models.ListingRecord, error) {
	byZIP := make(map[string][]models.ListingRecord, len(zips))

	if m.cfg.UseCachedSearch {
		path := RawCachePath(m.cfg.CacheDir, metro)
		records, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("reload cached search results: %w", err)
		}
		for _, r := range records {
			byZIP[r.ZIP] = append(byZIP[r.ZIP], r)
		}
		for _, rows := range byZIP {
			report.ZIPsWithData++
			report.ListingsProcessed += len(rows)
		}
		report.ZIPsAttempted = len(byZIP)
		slog.Info("search phase skipped, using cached results",
			slog.String("path", path),
			slog.Int("rows", len(records)),
		)
		return byZIP, nil
	}

	start := time.Now()
	var combined []models.ListingRecord
	var formatErr error
	formatFails := 0

	for i, zip := range zips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report.ZIPsAttempted++
		rows, err := m.searcher.Search(ctx, zip, filters)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			var format *listings.FormatError
			if errors.As(err, &format) {
				formatFails++
				formatErr = err
			}
			report.ZIPsFailed++
			report.FailedZIPs = append(report.FailedZIPs, zip)
			report.ErrorsByType[errorLabel(err)]++
			continue
		}

		if len(rows) == 0 {
			report.ZIPsEmpty++
		} else {
			report.ZIPsWithData++
			report.ListingsProcessed += len(rows)
			byZIP[zip] = rows
			combined = append(combined, rows...)
		}

		processed := i + 1
		if remaining := len(zips) - processed; remaining > 0 {
			avg := time.Since(start) / time.Duration(processed)
			slog.Debug("search progress",
				slog.Int("processed", processed),
				slog.Int("total", len(zips)),
				slog.Duration("estimated_remaining", avg*time.Duration(remaining)),
			)
		}
	}

	// A single format failure is a per-ZIP problem; every ZIP failing the
	// same way means the result layout itself changed.
	if formatFails > 0 && formatFails == report.ZIPsAttempted {
		return nil, fmt.Errorf("result format changed for every zip: %w", formatErr)
	}

	if len(combined) > 0 {
		path := RawCachePath(m.cfg.CacheDir, metro)
		if err := SaveRaw(path, combined); err != nil {
			slog.Warn("could not save combined raw results", slog.Any("error", err))
		}
	}
	return byZIP, nil
}

// extractPhase attaches heating categories to every row. Per-listing detail
// failures leave the row with an all-false category set and HadDetail unset;
// a confirmed no-match keeps HadDetail set so the two stay distinguishable
// downstream.
func (m *Metro) extractPhase(ctx context.Context, byZIP map[string][]models.ListingRecord, report *models.RunReport) error {
	var payloadErr error
	attempted, payloadFails := 0, 0

	for zip, rows := range byZIP {
		for i := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}

			attempted++
			groups, err := m.fetcher.AmenityGroups(ctx, rows[i].DetailRef)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				var payload *detail.PayloadError
				if errors.As(err, &payload) {
					payloadFails++
					payloadErr = err
				}
				report.ErrorsByType[errorLabel(err)]++
				report.ListingsUnknown++
				slog.Debug("detail fetch failed",
					slog.String("zip", zip),
					slog.String("ref", rows[i].DetailRef),
					slog.Any("error", err),
				)
				continue
			}

			rows[i].HadDetail = true
			fragments := m.extractor.HeatingFragments(groups)
			rows[i].Heating = m.categorizer.Categorize(fragments)
			if rows[i].Heating == (models.FuelCategoryResult{}) {
				report.ListingsNoMatch++
			}
		}
	}

	if payloadFails > 0 && payloadFails == attempted {
		return fmt.Errorf("detail payload format changed for every listing: %w", payloadErr)
	}
	return nil
}

// persistPhase writes one output file per ZIP with data, named by the ZIP
// under a per-metro directory.
func (m *Metro) persistPhase(metro string, zips []string, byZIP map[string][]models.ListingRecord, report *models.RunReport) error {
	outDir := filepath.Join(m.cfg.OutputDir, metroSlug(metro))

	for _, zip := range zips {
		rows, ok := byZIP[zip]
		if !ok {
			continue
		}
		if err := m.writeZIP(filepath.Join(outDir, zip), rows); err != nil {
			report.ZIPsFailed++
			report.FailedZIPs = append(report.FailedZIPs, zip)
			report.ErrorsByType["write"]++
			slog.Error("persist failed",
				slog.String("zip", zip),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func (m *Metro) writeZIP(base string, rows []models.ListingRecord) error {
	writer, err := NewWriter(m.cfg.OutputFormat, base)
	if err != nil {
		return err
	}
	if err := writer.Write(rows); err != nil {
		writer.Close()
		return err
	}
	// Validate stats the open handle, so it has to run before Close.
	if err := writer.Validate(); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// errorLabel buckets unit errors for the run report.
func errorLabel(err error) string {
	var zipNotFound *listings.ZIPNotFoundError
	if errors.As(err, &zipNotFound) {
		return "zip_not_found"
	}
	var format *listings.FormatError
	if errors.As(err, &format) {
		return "format"
	}
	var timeout listings.ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn listings.ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var blocked listings.ErrBlocked
	if errors.As(err, &blocked) {
		return "blocked"
	}
	var refNotFound *detail.RefNotFoundError
	if errors.As(err, &refNotFound) {
		return "detail_not_found"
	}
	var payload *detail.PayloadError
	if errors.As(err, &payload) {
		return "detail_payload"
	}
	var detailBlocked *detail.BlockedError
	if errors.As(err, &detailBlocked) {
		return "blocked"
	}
	return "other"
}
