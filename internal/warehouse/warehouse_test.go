package warehouse

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gioland/internal/domain"
)

func testConnector(t *testing.T) *Connector {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "warehouse"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func newTestParcel(t *testing.T, c *Connector, md map[string]string) string {
	t.Helper()
	var name string
	err := c.Update("tester", "test setup", func(wh *Warehouse) error {
		p, err := wh.NewParcel()
		if err != nil {
			return err
		}
		name = p.Name
		if md != nil {
			return p.SaveMetadata(md)
		}
		return nil
	})
	require.NoError(t, err)
	return name
}

func TestWarehouseInitiallyEmpty(t *testing.T) {
	c := testConnector(t)
	err := c.View(func(wh *Warehouse) error {
		parcels, err := wh.AllParcels()
		require.NoError(t, err)
		assert.Empty(t, parcels)
		return nil
	})
	require.NoError(t, err)
}

func TestNewParcelCreatesFolderWithMode(t *testing.T) {
	c := testConnector(t)
	name := newTestParcel(t, c, nil)

	info, err := os.Stat(filepath.Join(c.FSPath(), "parcels", name))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestGetParcelReturnsTheRightParcel(t *testing.T) {
	c := testConnector(t)
	name1 := newTestParcel(t, c, map[string]string{"country": "be"})
	newTestParcel(t, c, map[string]string{"country": "dk"})

	err := c.View(func(wh *Warehouse) error {
		p, err := wh.GetParcel(name1)
		require.NoError(t, err)
		assert.Equal(t, "be", p.Metadata["country"])

		parcels, err := wh.AllParcels()
		require.NoError(t, err)
		assert.Len(t, parcels, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestGetMissingParcelIsNotFound(t *testing.T) {
	c := testConnector(t)
	err := c.View(func(wh *Warehouse) error {
		_, err := wh.GetParcel("nope")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMetadataMergeSave(t *testing.T) {
	c := testConnector(t)
	name := newTestParcel(t, c, map[string]string{"a": "b", "hello": "world"})

	err := c.Update("tester", "test", func(wh *Warehouse) error {
		p, err := wh.GetParcel(name)
		require.NoError(t, err)
		return p.SaveMetadata(map[string]string{"hello": "again"})
	})
	require.NoError(t, err)

	err = c.View(func(wh *Warehouse) error {
		p, err := wh.GetParcel(name)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "b", "hello": "again"}, p.Metadata)
		return nil
	})
	require.NoError(t, err)
}

func TestNonASCIIMetadataRejected(t *testing.T) {
	c := testConnector(t)
	name := newTestParcel(t, c, map[string]string{"a": "b"})

	for _, bad := range []map[string]string{
		{"kÌ": "a"},
		{"a": "Ì"},
	} {
		err := c.Update("tester", "test", func(wh *Warehouse) error {
			p, err := wh.GetParcel(name)
			require.NoError(t, err)
			return p.SaveMetadata(bad)
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	}

	// a failed update must not leak partial state
	err := c.View(func(wh *Warehouse) error {
		p, err := wh.GetParcel(name)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "b"}, p.Metadata)
		return nil
	})
	require.NoError(t, err)
}

func TestFinalizeSealsParcel(t *testing.T) {
	c := testConnector(t)
	name := newTestParcel(t, c, nil)

	payload := []byte("teh map data")
	sum := md5.Sum(payload)
	require.NoError(t, os.WriteFile(
		filepath.Join(c.FSPath(), "parcels", name, "data.gml"), payload, 0o644))

	t0 := time.Now().UTC().Add(-time.Second)
	err := c.Update("tester", "test", func(wh *Warehouse) error {
		p, err := wh.GetParcel(name)
		require.NoError(t, err)
		assert.True(t, p.Uploading())
		return p.Finalize()
	})
	require.NoError(t, err)
	t1 := time.Now().UTC().Add(time.Second)

	err = c.View(func(wh *Warehouse) error {
		p, err := wh.GetParcel(name)
		require.NoError(t, err)
		assert.False(t, p.Uploading())

		stamp, err := time.Parse(time.RFC3339, p.Metadata["upload_time"])
		require.NoError(t, err)
		assert.True(t, !stamp.Before(t0) && !stamp.After(t1))

		require.Len(t, p.Checksum, 1)
		assert.Equal(t, "data.gml", p.Checksum[0].File)
		assert.Equal(t, hex.EncodeToString(sum[:]), p.Checksum[0].MD5)
		return nil
	})
	require.NoError(t, err)
}

func TestChecksumSkipsHiddenFilesAndDirs(t *testing.T) {
	c := testConnector(t)
	name := newTestParcel(t, c, nil)
	dir := filepath.Join(c.FSPath(), "parcels", name)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "temp_upload1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.txt"), []byte("y"), 0o644))

	err := c.Update("tester", "test", func(wh *Warehouse) error {
		p, err := wh.GetParcel(name)
		require.NoError(t, err)
		if err := p.Finalize(); err != nil {
			return err
		}
		require.Len(t, p.Checksum, 1)
		assert.Equal(t, "real.txt", p.Checksum[0].File)

		files, err := p.Files()
		require.NoError(t, err)
		assert.Equal(t, []string{"real.txt"}, files)
		return nil
	})
	require.NoError(t, err)
}

func TestParcelPersistsAcrossReopen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "warehouse")
	c, err := Open(root)
	require.NoError(t, err)
	name := newTestParcel(t, c, map[string]string{"hello": "world"})
	require.NoError(t, c.Close())

	c2, err := Open(root)
	require.NoError(t, err)
	defer c2.Close()
	err = c2.View(func(wh *Warehouse) error {
		p, err := wh.GetParcel(name)
		require.NoError(t, err)
		assert.Equal(t, "world", p.Metadata["hello"])
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	c := testConnector(t)
	boom := errors.New("boom")

	var name string
	err := c.Update("tester", "test", func(wh *Warehouse) error {
		p, err := wh.NewParcel()
		require.NoError(t, err)
		name = p.Name
		if err := p.SaveMetadata(map[string]string{"a": "b"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = c.View(func(wh *Warehouse) error {
		_, err := wh.GetParcel(name)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteParcelKeepsFolder(t *testing.T) {
	c := testConnector(t)
	name := newTestParcel(t, c, nil)

	err := c.Update("tester", "test", func(wh *Warehouse) error {
		return wh.DeleteParcel(name)
	})
	require.NoError(t, err)

	err = c.View(func(wh *Warehouse) error {
		_, err := wh.GetParcel(name)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(c.FSPath(), "parcels", name))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestHistoryItemsGetIncrementalIDs(t *testing.T) {
	c := testConnector(t)
	name := newTestParcel(t, c, nil)

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	err := c.Update("tester", "test", func(wh *Warehouse) error {
		p, err := wh.GetParcel(name)
		require.NoError(t, err)
		item1, err := p.AddHistoryItem("one", first, "somebody", "")
		require.NoError(t, err)
		item2, err := p.AddHistoryItem("two", second, "somebody", "descr")
		require.NoError(t, err)
		assert.Equal(t, 1, item1.ID)
		assert.Equal(t, 2, item2.ID)
		return nil
	})
	require.NoError(t, err)

	err = c.View(func(wh *Warehouse) error {
		p, err := wh.GetParcel(name)
		require.NoError(t, err)
		require.Len(t, p.History, 2)
		assert.Equal(t, "one", p.History[0].Title)
		assert.Equal(t, "descr", p.History[1].DescriptionHTML)
		assert.True(t, p.LastModified().Equal(second))
		return nil
	})
	require.NoError(t, err)
}

func TestReportsAutoIncrement(t *testing.T) {
	c := testConnector(t)

	var id1, id2 int
	err := c.Update("tester", "test", func(wh *Warehouse) error {
		r1, err := wh.NewReport(domain.Report{Country: "be", Category: "for", Filename: "CDR_BE_FOR_V01.pdf"})
		require.NoError(t, err)
		r2, err := wh.NewReport(domain.Report{Country: "dk", Category: "imp", Filename: "CDR_DK_IMP_V01.pdf"})
		require.NoError(t, err)
		id1, id2 = r1.ID, r2.ID
		assert.Equal(t, "tester", r1.User)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, id1)
	assert.Equal(t, 2, id2)

	err = c.Update("tester", "test", func(wh *Warehouse) error {
		return wh.DeleteReport(id2)
	})
	require.NoError(t, err)

	err = c.Update("tester", "test", func(wh *Warehouse) error {
		r3, err := wh.NewReport(domain.Report{Country: "at", Category: "wet", Filename: "CDR_AT_WET_V01.pdf"})
		require.NoError(t, err)
		assert.Equal(t, 2, r3.ID)

		reports, err := wh.AllReports()
		require.NoError(t, err)
		assert.Len(t, reports, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestGetMissingReportIsNotFound(t *testing.T) {
	c := testConnector(t)
	err := c.View(func(wh *Warehouse) error {
		_, err := wh.GetReport(7)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
