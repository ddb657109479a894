package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendatawatch/opendatawatch/internal/schedule"
	"github.com/opendatawatch/opendatawatch/internal/store"
)

// fakeSource serves a fixed record set, or fails every page.
type fakeSource struct {
	name    string
	records []RawDatasetRecord
	err     error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchCatalogPage(ctx context.Context, cursor string) ([]RawDatasetRecord, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if cursor != "" {
		return nil, "", nil
	}
	return f.records, "", nil
}

func newTestOrchestrator(t *testing.T, sources ...Source) (*Orchestrator, *store.Store, *schedule.Scheduler) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sched, err := schedule.New(&schedule.Config{Logger: log, Store: st})
	require.NoError(t, err)

	o, err := New(&Config{
		Logger:    log,
		Store:     st,
		Scheduler: sched,
		Sources:   sources,
	})
	require.NoError(t, err)
	return o, st, sched
}

func record(id, title string) RawDatasetRecord {
	return RawDatasetRecord{
		Identifier:   id,
		Title:        title,
		Agency:       "Example Agency",
		LandingURL:   "https://data.example.gov/" + id + ".csv",
		Format:       "csv",
		License:      "CC0",
		LastModified: "2026-08-01",
	}
}

func TestOrchestrator_SessionRegistersNewDatasets(t *testing.T) {
	t.Parallel()

	src := &fakeSource{name: "catalog", records: []RawDatasetRecord{
		record("alpha", "Dataset Alpha"),
		record("beta", "Dataset Beta"),
	}}
	o, st, _ := newTestOrchestrator(t, src)
	ctx := context.Background()

	result, err := o.RunDiscoverySession(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.TotalFound)
	require.Equal(t, 2, result.NewFound)
	require.Equal(t, 1, result.SourcesChecked)
	require.Empty(t, result.Errors)
	require.Empty(t, result.VanishedCandidates)

	// Every new dataset gets a row, a license category, and a schedule entry.
	ds, err := st.GetDataset(ctx, CanonicalID(record("alpha", "")))
	require.NoError(t, err)
	require.Equal(t, "Dataset Alpha", ds.Title)
	require.Equal(t, LicensePublicDomain, ds.LicenseCategory)

	entry, err := st.GetScheduleEntry(ctx, ds.DatasetID)
	require.NoError(t, err)
	require.Equal(t, store.PriorityUnclassified, entry.Priority)

	sess, err := st.GetDiscoverySession(ctx, result.SessionID)
	require.NoError(t, err)
	require.Equal(t, store.SessionStatusCompleted, sess.Status)
	require.Equal(t, int64(2), sess.NewDatasetsFound)
}

func TestOrchestrator_RerunFindsNothingNew(t *testing.T) {
	t.Parallel()

	src := &fakeSource{name: "catalog", records: []RawDatasetRecord{record("alpha", "Dataset Alpha")}}
	o, st, _ := newTestOrchestrator(t, src)
	ctx := context.Background()

	first, err := o.RunDiscoverySession(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.NewFound)

	ds, err := st.GetDataset(ctx, CanonicalID(record("alpha", "")))
	require.NoError(t, err)
	firstSeen := ds.FirstDiscovered

	second, err := o.RunDiscoverySession(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, second.TotalFound)
	require.Zero(t, second.NewFound)

	ds, err = st.GetDataset(ctx, ds.DatasetID)
	require.NoError(t, err)
	require.True(t, ds.FirstDiscovered.Equal(firstSeen))
}

func TestOrchestrator_SourceFailureIsIsolated(t *testing.T) {
	t.Parallel()

	good := &fakeSource{name: "good", records: []RawDatasetRecord{record("alpha", "Dataset Alpha")}}
	bad := &fakeSource{name: "bad", err: errors.New("upstream down")}
	o, _, _ := newTestOrchestrator(t, bad, good)

	result, err := o.RunDiscoverySession(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.SourcesChecked)
	require.Equal(t, 1, result.NewFound, "the healthy source still enumerates")
	require.Len(t, result.Errors, 1)
	require.ErrorContains(t, result.Errors[0], "bad")
}

func TestOrchestrator_VanishedCandidatesKeepHistory(t *testing.T) {
	t.Parallel()

	src := &fakeSource{name: "catalog", records: []RawDatasetRecord{
		record("alpha", "Dataset Alpha"),
		record("beta", "Dataset Beta"),
	}}
	o, st, _ := newTestOrchestrator(t, src)
	ctx := context.Background()

	_, err := o.RunDiscoverySession(ctx)
	require.NoError(t, err)

	// beta drops out of the live listing.
	src.records = src.records[:1]

	result, err := o.RunDiscoverySession(ctx)
	require.NoError(t, err)

	betaID := CanonicalID(record("beta", ""))
	require.Equal(t, []string{betaID}, result.VanishedCandidates)

	// Vanished means flagged, never deleted.
	_, err = st.GetDataset(ctx, betaID)
	require.NoError(t, err)
	_, err = st.GetScheduleEntry(ctx, betaID)
	require.NoError(t, err)
}

func TestOrchestrator_CrossSourceIdentity(t *testing.T) {
	t.Parallel()

	// The same non-UUID identifier enumerated by two sources maps to one
	// dataset with two associations.
	rec := record("shared-id", "Shared Dataset")
	a := &fakeSource{name: "source-a", records: []RawDatasetRecord{rec}}
	b := &fakeSource{name: "source-b", records: []RawDatasetRecord{rec}}
	o, st, _ := newTestOrchestrator(t, a, b)
	ctx := context.Background()

	result, err := o.RunDiscoverySession(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.TotalFound)
	require.Equal(t, 1, result.NewFound, "second source re-sights, does not re-create")

	ids, err := st.ListDatasetIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
}
