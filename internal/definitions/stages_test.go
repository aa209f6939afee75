package definitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gioland/internal/domain"
)

func TestAllGraphsValidate(t *testing.T) {
	assert.NoError(t, ValidateGraphs())
}

func TestGraphForSelectsByDeliveryTypeAndExtent(t *testing.T) {
	g, err := GraphFor(domain.DeliveryCountry, "full")
	require.NoError(t, err)
	assert.Equal(t, CountryGraph, g)

	g, err = GraphFor(domain.DeliveryLot, "partial")
	require.NoError(t, err)
	assert.Equal(t, LotPartialGraph, g)

	g, err = GraphFor(domain.DeliveryLot, "full")
	require.NoError(t, err)
	assert.Equal(t, LotFullGraph, g)

	g, err = GraphFor(domain.DeliveryStream, "")
	require.NoError(t, err)
	assert.Equal(t, StreamGraph, g)

	_, err = GraphFor(domain.DeliveryType("bogus"), "")
	assert.Error(t, err)
}

func TestForwardOrderFollowsDeclaration(t *testing.T) {
	want := []string{"int", "sch", "ver", "vch", "enh", "ech", "fin", "c-fsc", "fih"}
	id := "int"
	got := []string{id}
	for {
		next, ok := CountryGraph.Next(id)
		if !ok {
			break
		}
		got = append(got, next.ID)
		id = next.ID
	}
	assert.Equal(t, want, got)

	last, ok := CountryGraph.Get("fih")
	require.True(t, ok)
	assert.True(t, last.Last)
}

func TestRejectTargets(t *testing.T) {
	cases := []struct {
		graph *StageGraph
		stage string
		want  string
	}{
		{CountryGraph, "sch", "int"},
		{CountryGraph, "vch", "ver"},
		{CountryGraph, "ech", "enh"},
		{CountryGraph, "c-fsc", "fin"},
		{LotFullGraph, "fva", "int"},
		{LotPartialGraph, "fva", "int"},
		{StreamGraph, "sth", "int"},
	}
	for _, c := range cases {
		target, ok := c.graph.RejectTargetOf(c.stage)
		require.True(t, ok, "%s/%s", c.graph.Name, c.stage)
		assert.Equal(t, c.want, target.ID, "%s/%s", c.graph.Name, c.stage)
	}
}

func TestNonRejectingStagesHaveNoRejectTarget(t *testing.T) {
	for _, id := range []string{"int", "ver", "enh", "fin", "fih"} {
		_, ok := CountryGraph.RejectTargetOf(id)
		assert.False(t, ok, id)
	}
}

func TestValidateCatchesBadRejectTarget(t *testing.T) {
	g := newGraph("broken",
		Stage{ID: "a", Label: "A", FileUploading: true},
		Stage{ID: "b", Label: "B", Reject: true, RejectTarget: "nope"},
		Stage{ID: "z", Label: "Z", Last: true},
	)
	assert.Error(t, g.Validate())
}

func TestValidateCatchesForwardRejectTarget(t *testing.T) {
	g := newGraph("broken",
		Stage{ID: "a", Label: "A"},
		Stage{ID: "b", Label: "B", Reject: true, RejectTarget: "z"},
		Stage{ID: "z", Label: "Z", Last: true},
	)
	assert.Error(t, g.Validate())
}

func TestValidateCatchesMisplacedTerminal(t *testing.T) {
	g := newGraph("broken",
		Stage{ID: "a", Label: "A"},
		Stage{ID: "z", Label: "Z", Last: true},
		Stage{ID: "b", Label: "B"},
	)
	assert.Error(t, g.Validate())
}

func TestMergeableStage(t *testing.T) {
	s, ok := LotPartialGraph.Get("enh")
	require.True(t, ok)
	assert.True(t, s.Mergeable)

	next, ok := LotPartialGraph.Next("enh")
	require.True(t, ok)
	assert.Equal(t, "fva", next.ID)

	// the post-merge chain must be walkable under the full graph
	_, ok = LotFullGraph.Get(next.ID)
	assert.True(t, ok)
}

func TestFinalStageCopiesFromFinalIntegrated(t *testing.T) {
	s, ok := CountryGraph.Get("fih")
	require.True(t, ok)
	assert.Equal(t, "fin", s.CopyFilesFrom)
}

func TestStageLabel(t *testing.T) {
	assert.Equal(t, "Final Semantic check", StageLabel("c-fsc"))
	assert.Equal(t, "Service provider upload", StageLabel("int"))
	assert.Equal(t, "", StageLabel("nope"))
}

func TestLotProducts(t *testing.T) {
	assert.Contains(t, LotProducts("lot3", domain.DeliveryCountry), "grl")
	assert.NotContains(t, LotProducts("lot3", domain.DeliveryCountry), "wet")
	assert.Contains(t, LotProducts("lot2", domain.DeliveryStream), "fty")
	assert.Empty(t, LotProducts("lot9", domain.DeliveryLot))
}

func TestVocabLookups(t *testing.T) {
	assert.True(t, Countries.Has("be"))
	assert.False(t, Countries.Has("xx"))
	assert.Equal(t, "Denmark", Countries.Label("dk"))
	assert.Equal(t, "20 m", Resolutions.Label("20m"))
	assert.Equal(t, "", Products.Label("nope"))
}
