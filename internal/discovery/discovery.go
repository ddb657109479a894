package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/opendatawatch/opendatawatch/internal/schedule"
	"github.com/opendatawatch/opendatawatch/internal/store"
)

type Config struct {
	Logger    *slog.Logger
	Store     *store.Store
	Scheduler *schedule.Scheduler
	Clock     clockwork.Clock

	// Sources is the ordered list of upstream catalogs; one source failing
	// never aborts the others.
	Sources []Source
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Scheduler == nil {
		return errors.New("scheduler is required")
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Orchestrator runs discovery sessions: enumerate every source, derive
// canonical identities, upsert metadata, and register new datasets with the
// scheduler.
type Orchestrator struct {
	log   *slog.Logger
	cfg   *Config
	store *store.Store
	clock clockwork.Clock
}

func New(cfg *Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		log:   cfg.Logger,
		cfg:   cfg,
		store: cfg.Store,
		clock: cfg.Clock,
	}, nil
}

// Result summarizes one discovery session.
type Result struct {
	SessionID      string
	TotalFound     int
	NewFound       int
	SourcesChecked int
	// VanishedCandidates are datasets known from earlier sessions that this
	// session's live enumeration did not return. They keep their snapshots
	// and schedule entries; this list only flags them for reconstruction.
	VanishedCandidates []string
	Errors             []error
}

// RunDiscoverySession enumerates all configured sources once. Per-source
// failures land in Result.Errors and the session still completes; only a
// session that cannot even be recorded fails outright.
func (o *Orchestrator) RunDiscoverySession(ctx context.Context) (*Result, error) {
	sess := &store.DiscoverySession{
		SessionID: uuid.NewString(),
		StartTime: o.clock.Now().UTC(),
		Status:    store.SessionStatusRunning,
	}
	if err := o.store.CreateDiscoverySession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to open discovery session: %w", err)
	}

	o.log.Info("discovery session started",
		slog.String("session_id", sess.SessionID),
		slog.Int("sources", len(o.cfg.Sources)))

	result := &Result{SessionID: sess.SessionID}
	for _, src := range o.cfg.Sources {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err())
			break
		}
		found, added, err := o.enumerateSource(ctx, src, sess.SessionID)
		result.SourcesChecked++
		result.TotalFound += found
		result.NewFound += added
		if err != nil {
			MetricSourceErrors.WithLabelValues(src.Name()).Inc()
			o.log.Warn("source enumeration failed",
				slog.String("source", src.Name()),
				slog.String("error", err.Error()))
			result.Errors = append(result.Errors, fmt.Errorf("source %s: %w", src.Name(), err))
		}
	}

	// Datasets absent from this live enumeration are vanished candidates.
	// Nothing is deleted; reconstruction happens against the archive later.
	if vanished, err := o.store.DatasetsNotSeenInSession(ctx, sess.SessionID); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("vanished-candidate query: %w", err))
	} else {
		result.VanishedCandidates = vanished
	}

	sess.EndTime = o.clock.Now().UTC()
	sess.SourcesChecked = int64(result.SourcesChecked)
	sess.TotalDatasetsFound = int64(result.TotalFound)
	sess.NewDatasetsFound = int64(result.NewFound)
	sess.Status = store.SessionStatusCompleted
	if result.SourcesChecked == 0 {
		sess.Status = store.SessionStatusFailed
	}
	if err := o.store.CloseDiscoverySession(ctx, sess); err != nil {
		return result, fmt.Errorf("failed to close discovery session: %w", err)
	}

	MetricSessions.WithLabelValues(sess.Status).Inc()
	o.log.Info("discovery session completed",
		slog.String("session_id", sess.SessionID),
		slog.Int("total_found", result.TotalFound),
		slog.Int("new_found", result.NewFound),
		slog.Int("vanished_candidates", len(result.VanishedCandidates)),
		slog.Int("errors", len(result.Errors)))
	return result, nil
}

// enumerateSource walks one source's pages to exhaustion, upserting every
// record. Returns (records seen, new datasets).
func (o *Orchestrator) enumerateSource(ctx context.Context, src Source, sessionID string) (int, int, error) {
	var found, added int
	cursor := ""
	for {
		records, next, err := src.FetchCatalogPage(ctx, cursor)
		if err != nil {
			return found, added, err
		}
		for _, rec := range records {
			wasNew, err := o.registerRecord(ctx, src.Name(), sessionID, rec)
			if err != nil {
				return found, added, err
			}
			found++
			if wasNew {
				added++
			}
		}
		if next == "" {
			return found, added, nil
		}
		cursor = next
	}
}

// registerRecord upserts one record's dataset row and source association.
// "New" means no source has ever associated this canonical ID before, which
// is independent of whether a snapshot exists yet.
func (o *Orchestrator) registerRecord(ctx context.Context, source, sessionID string, rec RawDatasetRecord) (bool, error) {
	datasetID := CanonicalID(rec)
	now := o.clock.Now().UTC()

	known, err := o.store.DatasetKnown(ctx, datasetID)
	if err != nil {
		return false, err
	}

	dataset := &store.Dataset{
		DatasetID:       datasetID,
		Title:           rec.Title,
		Agency:          rec.Agency,
		LandingURL:      rec.LandingURL,
		ResourceFormat:  rec.Format,
		License:         rec.License,
		LicenseCategory: ClassifyLicense(rec.License),
		LastModified:    rec.LastModified,
		FirstDiscovered: now,
	}
	if known {
		// Preserve the original discovery time on re-sight.
		if existing, err := o.store.GetDataset(ctx, datasetID); err == nil {
			dataset.FirstDiscovered = existing.FirstDiscovered
		}
	}
	if err := o.store.UpsertDataset(ctx, dataset); err != nil {
		return false, err
	}
	if err := o.store.AssociateSource(ctx, datasetID, source, sessionID, now); err != nil {
		return false, err
	}

	if !known {
		if err := o.cfg.Scheduler.Register(ctx, datasetID); err != nil {
			return false, err
		}
		MetricDatasetsDiscovered.WithLabelValues(source).Inc()
	}
	return !known, nil
}

// DiscoverDiff returns the IDs present historically but absent from the live
// set. Pure set arithmetic, exposed for reconstruction tooling.
func DiscoverDiff(liveIDs, historicalIDs []string) []string {
	live := make(map[string]struct{}, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = struct{}{}
	}
	var vanished []string
	for _, id := range historicalIDs {
		if _, ok := live[id]; !ok {
			vanished = append(vanished, id)
		}
	}
	return vanished
}

// ReconstructVanished writes an unavailable snapshot for a vanished dataset
// from its last archived capture, preserving the dataset's history as the
// sole evidence of prior existence.
func (o *Orchestrator) ReconstructVanished(ctx context.Context, archive *ArchiveClient, datasetID string, lookback time.Duration) error {
	dataset, err := o.store.GetDataset(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("failed to load vanished dataset %s: %w", datasetID, err)
	}

	now := o.clock.Now().UTC()
	capture, err := archive.LastCapture(ctx, dataset.LandingURL, now.Add(-lookback), now)
	if err != nil {
		return fmt.Errorf("archive lookup for %s: %w", datasetID, err)
	}
	if capture == nil {
		o.log.Debug("no archived capture for vanished dataset", slog.String("dataset_id", datasetID))
		return nil
	}

	snap := &store.Snapshot{
		DatasetID:       datasetID,
		SnapshotDate:    now.Format("2006-01-02"),
		Title:           dataset.Title,
		Agency:          dataset.Agency,
		URL:             capture.OriginalURL,
		ResourceFormat:  dataset.ResourceFormat,
		LicenseCategory: dataset.LicenseCategory,
		ContentHash:     capture.Digest,
		Availability:    store.Unavailable,
		CreatedAt:       now,
	}
	if err := o.store.UpsertSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to write reconstruction snapshot for %s: %w", datasetID, err)
	}
	o.log.Info("reconstructed vanished dataset from archive",
		slog.String("dataset_id", datasetID),
		slog.Time("last_capture", capture.Timestamp))
	return nil
}
