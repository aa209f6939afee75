package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gioland/internal/definitions"
	"gioland/internal/domain"
	"gioland/internal/event"
	"gioland/internal/notification"
	"gioland/internal/warehouse"
)

// stubAuth grants fixed roles per user. Anonymous actors get nothing.
type stubAuth struct {
	roles    map[string][]domain.Role
	accounts map[string]domain.Account
}

func (a *stubAuth) Authorize(_ context.Context, userID string, roles ...domain.Role) bool {
	if userID == "" {
		return false
	}
	for _, have := range a.roles[userID] {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

func (a *stubAuth) Account(userID string) (domain.Account, bool) {
	acc, ok := a.accounts[userID]
	return acc, ok
}

func (a *stubAuth) DisplayName(userID string) string {
	if acc, ok := a.accounts[userID]; ok && acc.DisplayName != "" {
		return acc.DisplayName
	}
	return userID
}

type testEnv struct {
	wh      *warehouse.Connector
	parcels ParcelService
	uploads UploadService
	reports ReportService
	hub     *event.Hub

	events map[string]int
	notes  []notification.Event
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	wh, err := warehouse.Open(filepath.Join(t.TempDir(), "warehouse"))
	require.NoError(t, err)
	t.Cleanup(func() { wh.Close() })

	auth := &stubAuth{
		roles: map[string][]domain.Role{
			"sp1":   {domain.RoleServiceProvider},
			"etc1":  {domain.RoleETC},
			"nrc1":  {domain.RoleNRC},
			"admin": {domain.RoleAdmin},
		},
		accounts: map[string]domain.Account{
			"sp1": {Username: "sp1", DisplayName: "Joe Smith", Email: "sp1@example.com"},
		},
	}

	env := &testEnv{wh: wh, hub: event.NewHub(), events: map[string]int{}}
	for _, signal := range []string{
		event.ParcelCreated, event.FileUploaded, event.ParcelFinalized,
		event.ParcelDeleted, event.ParcelFileDeleted,
	} {
		signal := signal
		env.hub.Subscribe(signal, func(event.Event) { env.events[signal]++ })
	}

	notifier, err := notification.NewNotifier(
		notification.Config{BaseURL: "http://example.com", Suppress: true},
		notification.NoopDispatcher{})
	require.NoError(t, err)
	notifier.AddListener(func(ev notification.Event, _ []notification.Triple) {
		env.notes = append(env.notes, ev)
	})

	cfg := Config{
		BaseURL:             "http://example.com",
		AllowParcelDeletion: true,
		UploadLockTimeout:   50 * time.Millisecond,
	}
	env.parcels = NewParcelService(wh, auth, notifier, env.hub, nil, cfg)
	env.uploads = NewUploadService(wh, auth, env.hub, cfg)
	env.reports = NewReportService(wh, auth)
	return env
}

func countryFields() map[string]string {
	return map[string]string{
		"country":    "be",
		"lot":        "lot3",
		"product":    "grl",
		"resolution": "20m",
	}
}

func lotFields(extent, coverage string) map[string]string {
	return map[string]string{
		"country":    "be",
		"lot":        "lot3",
		"product":    "grl",
		"resolution": "20m",
		"extent":     extent,
		"coverage":   coverage,
	}
}

func (e *testEnv) createCountry(t *testing.T) *ParcelDetail {
	t.Helper()
	p, err := e.parcels.Create(context.Background(), "sp1", domain.DeliveryCountry, countryFields())
	require.NoError(t, err)
	return p
}

func TestCreateCountryDelivery(t *testing.T) {
	env := newTestEnv(t)
	fields := countryFields()
	fields["hello"] = "world"

	p, err := env.parcels.Create(context.Background(), "sp1", domain.DeliveryCountry, fields)
	require.NoError(t, err)

	assert.Equal(t, "int", p.Metadata[definitions.KeyStage])
	assert.Equal(t, "country", p.Metadata[definitions.KeyDeliveryType])
	assert.Equal(t, "sp1", p.Metadata[definitions.KeyUser])
	assert.Equal(t, "2012", p.Metadata["reference"])
	assert.NotContains(t, p.Metadata, "hello")
	assert.True(t, p.Uploading)

	require.Len(t, p.History, 1)
	assert.Equal(t, "New upload", p.History[0].Title)
	assert.Equal(t, 1, env.events[event.ParcelCreated])
}

func TestCreateRequiresInitialStageRole(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.parcels.Create(context.Background(), "etc1", domain.DeliveryCountry, countryFields())
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 0, env.events[event.ParcelCreated])
}

func TestCreatePartialNeedsCoverage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.parcels.Create(ctx, "sp1", domain.DeliveryLot, lotFields("partial", ""))
	assert.ErrorIs(t, err, domain.ErrValidation)

	p, err := env.parcels.Create(ctx, "sp1", domain.DeliveryLot, lotFields("partial", "north"))
	require.NoError(t, err)
	assert.Equal(t, "north", p.Metadata["coverage"])
}

func TestCreateFullClearsCoverage(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.parcels.Create(context.Background(), "sp1", domain.DeliveryLot, lotFields("full", "north"))
	require.NoError(t, err)
	assert.NotContains(t, p.Metadata, "coverage")
}

func TestCreateRejectsForeignProduct(t *testing.T) {
	env := newTestEnv(t)
	fields := countryFields()
	fields["product"] = "imd"

	_, err := env.parcels.Create(context.Background(), "sp1", domain.DeliveryCountry, fields)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStreamDeliveryDropsCountryFields(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.parcels.Create(context.Background(), "sp1", domain.DeliveryStream, map[string]string{
		"lot":     "lot2",
		"product": "fty",
		"country": "be",
		"extent":  "partial",
	})
	require.NoError(t, err)
	assert.NotContains(t, p.Metadata, "country")
	assert.NotContains(t, p.Metadata, "extent")
	assert.Equal(t, "int", p.Metadata[definitions.KeyStage])
}

func TestFinalizeAdvancesStage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createCountry(t)
	require.NoError(t, env.uploads.SaveFile(ctx, "sp1", p.Name, "data.gml", strings.NewReader("x")))

	next, err := env.parcels.Finalize(ctx, "sp1", p.Name, false)
	require.NoError(t, err)
	assert.Equal(t, "sch", next.Metadata[definitions.KeyStage])
	assert.Equal(t, p.Name, next.Metadata[definitions.KeyPrevParcel])

	old, err := env.parcels.Get(ctx, p.Name)
	require.NoError(t, err)
	assert.False(t, old.Uploading)
	assert.Equal(t, next.Name, old.Metadata[definitions.KeyNextParcel])

	last := old.History[len(old.History)-1]
	assert.Equal(t, "Service provider upload finished", last.Title)
	assert.Contains(t, last.DescriptionHTML, next.Name)
	assert.Contains(t, last.DescriptionHTML, "Semantic check")

	require.NotEmpty(t, next.History)
	assert.Equal(t, "Ready for Semantic check", next.History[0].Title)
	assert.Contains(t, next.History[0].DescriptionHTML, p.Name)

	assert.Equal(t, 1, env.events[event.ParcelFinalized])
	require.Len(t, env.notes, 1)
	assert.Equal(t, domain.EventStageFinished, env.notes[0].Type)
	assert.Equal(t, "accepted", env.notes[0].Decision)
	assert.Equal(t, "Joe Smith", env.notes[0].ActorName)
}

func TestFinalizeRejectReopensTargetStage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createCountry(t)

	check, err := env.parcels.Finalize(ctx, "sp1", p.Name, false)
	require.NoError(t, err)

	redo, err := env.parcels.Finalize(ctx, "etc1", check.Name, true)
	require.NoError(t, err)
	assert.Equal(t, "int", redo.Metadata[definitions.KeyStage])

	rejected, err := env.parcels.Get(ctx, check.Name)
	require.NoError(t, err)
	assert.Equal(t, "true", rejected.Metadata[definitions.KeyRejection])

	last := env.notes[len(env.notes)-1]
	assert.Equal(t, "rejected", last.Decision)
}

func TestFinalizeDeniedForWrongRole(t *testing.T) {
	env := newTestEnv(t)
	p := env.createCountry(t)

	_, err := env.parcels.Finalize(context.Background(), "etc1", p.Name, false)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 0, env.events[event.ParcelFinalized])
	assert.Empty(t, env.notes)
}

func TestRejectOnlyAtCheckStages(t *testing.T) {
	env := newTestEnv(t)
	p := env.createCountry(t)

	_, err := env.parcels.Finalize(context.Background(), "sp1", p.Name, true)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestFinalizeTwiceForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createCountry(t)

	_, err := env.parcels.Finalize(ctx, "sp1", p.Name, false)
	require.NoError(t, err)
	_, err = env.parcels.Finalize(ctx, "admin", p.Name, false)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestFinalizeTerminalStageForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.parcels.Create(ctx, "sp1", domain.DeliveryLot, lotFields("full", ""))
	require.NoError(t, err)
	validated, err := env.parcels.Finalize(ctx, "sp1", p.Name, false)
	require.NoError(t, err)
	final, err := env.parcels.Finalize(ctx, "etc1", validated.Name, false)
	require.NoError(t, err)
	require.Equal(t, "fih", final.Metadata[definitions.KeyStage])

	_, err = env.parcels.Finalize(ctx, "admin", final.Name, false)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

// walks a country delivery down the whole chain and checks the final
// rendition receives the integrated files.
func TestFinalRenditionCopiesIntegratedFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createCountry(t)

	steps := []struct {
		actor string
		stage string
	}{
		{"sp1", "int"},
		{"etc1", "sch"},
		{"nrc1", "ver"},
		{"etc1", "vch"},
		{"nrc1", "enh"},
		{"etc1", "ech"},
	}
	cur := p
	var err error
	for _, step := range steps {
		require.Equal(t, step.stage, cur.Metadata[definitions.KeyStage])
		cur, err = env.parcels.Finalize(ctx, step.actor, cur.Name, false)
		require.NoError(t, err)
	}

	require.Equal(t, "fin", cur.Metadata[definitions.KeyStage])
	require.NoError(t, env.uploads.SaveFile(ctx, "etc1", cur.Name, "final.gml", strings.NewReader("integrated")))
	check, err := env.parcels.Finalize(ctx, "etc1", cur.Name, false)
	require.NoError(t, err)
	require.Equal(t, "c-fsc", check.Metadata[definitions.KeyStage])

	final, err := env.parcels.Finalize(ctx, "etc1", check.Name, false)
	require.NoError(t, err)
	assert.Equal(t, "fih", final.Metadata[definitions.KeyStage])
	assert.Equal(t, []string{"final.gml"}, final.Files)
}

func TestMergePartialDeliveries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var enhanced []string
	for _, coverage := range []string{"partial_0", "partial_1"} {
		p, err := env.parcels.Create(ctx, "sp1", domain.DeliveryLot, lotFields("partial", coverage))
		require.NoError(t, err)
		next, err := env.parcels.Finalize(ctx, "sp1", p.Name, false)
		require.NoError(t, err)
		require.Equal(t, "enh", next.Metadata[definitions.KeyStage])
		enhanced = append(enhanced, next.Name)
	}
	env.notes = nil

	merged, err := env.parcels.Merge(ctx, "nrc1", enhanced[0])
	require.NoError(t, err)

	assert.Equal(t, "fva", merged.Metadata[definitions.KeyStage])
	assert.Equal(t, "full", merged.Metadata["extent"])
	assert.Equal(t, "1", merged.Metadata[definitions.KeyMerged])
	assert.NotContains(t, merged.Metadata, "coverage")
	assert.ElementsMatch(t, enhanced, merged.PrevParcels)

	require.NotEmpty(t, merged.History)
	first := merged.History[0]
	assert.Equal(t, "Ready for Final validated", first.Title)
	assert.Contains(t, first.DescriptionHTML, "(partial_0)")
	assert.Contains(t, first.DescriptionHTML, "(partial_1)")
	assert.Equal(t, 2, strings.Count(first.DescriptionHTML, "Previous step"))

	for _, name := range enhanced {
		sibling, err := env.parcels.Get(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, merged.Name, sibling.Metadata[definitions.KeyNextParcel])
		assert.Equal(t, "1", sibling.Metadata[definitions.KeyMerged])
		assert.False(t, sibling.Uploading)
	}
	assert.Len(t, env.notes, 2)
}

// merging one parcel must pull in every tail with the same lot,
// product, resolution and reference, not just the one it was
// triggered on.
func TestMergeGathersAllMatchingTails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var enhanced []string
	for _, coverage := range []string{"partial_0", "partial_1", "partial_2"} {
		p, err := env.parcels.Create(ctx, "sp1", domain.DeliveryLot, lotFields("partial", coverage))
		require.NoError(t, err)
		next, err := env.parcels.Finalize(ctx, "sp1", p.Name, false)
		require.NoError(t, err)
		enhanced = append(enhanced, next.Name)
	}

	merged, err := env.parcels.Merge(ctx, "nrc1", enhanced[1])
	require.NoError(t, err)

	assert.ElementsMatch(t, enhanced, merged.PrevParcels)
	for _, name := range enhanced {
		sibling, err := env.parcels.Get(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, merged.Name, sibling.Metadata[definitions.KeyNextParcel])
		assert.Equal(t, "1", sibling.Metadata[definitions.KeyMerged])
	}
}

func TestMergeSolitaryPartialRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// a tail with a different product is not a sibling
	fields1 := lotFields("partial", "partial_0")
	fields2 := lotFields("partial", "partial_1")
	fields2["product"] = "grc"

	var enhanced []string
	for _, fields := range []map[string]string{fields1, fields2} {
		p, err := env.parcels.Create(ctx, "sp1", domain.DeliveryLot, fields)
		require.NoError(t, err)
		next, err := env.parcels.Finalize(ctx, "sp1", p.Name, false)
		require.NoError(t, err)
		enhanced = append(enhanced, next.Name)
	}

	_, err := env.parcels.Merge(ctx, "nrc1", enhanced[0])
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeleteCascadesAndReopensPredecessor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createCountry(t)

	check, err := env.parcels.Finalize(ctx, "sp1", p.Name, false)
	require.NoError(t, err)

	require.NoError(t, env.parcels.Delete(ctx, "admin", check.Name))

	_, err = env.parcels.Get(ctx, check.Name)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	reopened, err := env.parcels.Get(ctx, p.Name)
	require.NoError(t, err)
	assert.True(t, reopened.Uploading)
	assert.NotContains(t, reopened.Metadata, definitions.KeyNextParcel)

	last := reopened.History[len(reopened.History)-1]
	assert.Contains(t, strings.ToLower(last.Title), "deleted")
	assert.Contains(t, last.DescriptionHTML, check.Name)

	assert.Equal(t, 1, env.events[event.ParcelDeleted])
}

func TestDeleteRequiresAdminAndFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createCountry(t)

	err := env.parcels.Delete(ctx, "sp1", p.Name)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	disabled := newTestEnv(t)
	dp := disabled.createCountry(t)
	svc := disabled.parcels.(*parcelService)
	svc.cfg.AllowParcelDeletion = false
	err = disabled.parcels.Delete(ctx, "admin", dp.Name)
	assert.ErrorIs(t, err, domain.ErrDeletionDisabled)
}

func TestCommentEscapesHTML(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createCountry(t)

	require.NoError(t, env.parcels.Comment(ctx, "etc1", p.Name, "<html>"))

	got, err := env.parcels.Get(ctx, p.Name)
	require.NoError(t, err)
	last := got.History[len(got.History)-1]
	assert.Equal(t, "Comment", last.Title)
	assert.Equal(t, "&lt;html&gt;", last.DescriptionHTML)

	require.Len(t, env.notes, 1)
	assert.Equal(t, domain.EventComment, env.notes[0].Type)
	assert.Empty(t, env.notes[0].Decision)
}

func TestSearchReturnsChainTails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createCountry(t)
	next, err := env.parcels.Finalize(ctx, "sp1", p.Name, false)
	require.NoError(t, err)

	tails, err := env.parcels.Search(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tails, 1)
	assert.Equal(t, next.Name, tails[0].Name)

	none, err := env.parcels.Search(ctx, map[string]string{"stage": "int"})
	require.NoError(t, err)
	assert.Empty(t, none)

	some, err := env.parcels.Search(ctx, map[string]string{"stage": "sch", "country": "be"})
	require.NoError(t, err)
	assert.Len(t, some, 1)
}

func TestChainWalksFromAnyMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createCountry(t)
	second, err := env.parcels.Finalize(ctx, "sp1", p.Name, false)
	require.NoError(t, err)
	third, err := env.parcels.Finalize(ctx, "etc1", second.Name, false)
	require.NoError(t, err)

	chain, err := env.parcels.Chain(ctx, second.Name)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, p.Name, chain[0].Name)
	assert.Equal(t, second.Name, chain[1].Name)
	assert.Equal(t, third.Name, chain[2].Name)
}

func TestOverviewGroupsByProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createCountry(t)

	fields := countryFields()
	fields["country"] = "dk"
	fields["lot"] = "lot4"
	fields["product"] = "wet"
	fields["resolution"] = "100m"
	_, err := env.parcels.Create(ctx, "sp1", domain.DeliveryCountry, fields)
	require.NoError(t, err)

	groups, err := env.parcels.Overview(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "grl", groups[0].Product)
	assert.Equal(t, "Grassland", groups[0].Label)
	assert.Equal(t, "wet", groups[1].Product)
	assert.Len(t, groups[0].Parcels, 1)
}
