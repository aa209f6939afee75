package service

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gioland/internal/domain"
)

func TestReportNamingAndVersions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r1, err := env.reports.Upload(ctx, "etc1", "be", "for", "report.pdf", strings.NewReader("one"))
	require.NoError(t, err)
	assert.Equal(t, "CDR_BE_FOR_V01.pdf", r1.Filename)
	assert.Equal(t, "etc1", r1.User)

	r2, err := env.reports.Upload(ctx, "etc1", "be", "for", "другой.pdf", strings.NewReader("two"))
	require.NoError(t, err)
	assert.Equal(t, "CDR_BE_FOR_V02.pdf", r2.Filename)

	r3, err := env.reports.Upload(ctx, "etc1", "dk", "for", "report.xlsx", strings.NewReader("three"))
	require.NoError(t, err)
	assert.Equal(t, "CDR_DK_FOR_V01.xlsx", r3.Filename)

	path, err := env.reports.FilePath(ctx, r1.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestReportRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.reports.Upload(ctx, "etc1", "be", "for", "photo.jpg", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.reports.Upload(ctx, "etc1", "zz", "for", "report.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.reports.Upload(ctx, "etc1", "be", "nope", "report.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReportPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.reports.Upload(ctx, "sp1", "be", "for", "report.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	r, err := env.reports.Upload(ctx, "admin", "be", "for", "report.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	err = env.reports.Delete(ctx, "etc1", r.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, env.reports.Delete(ctx, "admin", r.ID))
	_, err = env.reports.Get(ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.reports.FilePath(ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReportListFiltersByCountry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.reports.Upload(ctx, "etc1", "be", "for", "a.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = env.reports.Upload(ctx, "etc1", "dk", "wet", "b.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	all, err := env.reports.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	be, err := env.reports.List(ctx, "be")
	require.NoError(t, err)
	require.Len(t, be, 1)
	assert.Equal(t, "CDR_BE_FOR_V01.pdf", be[0].Filename)
}
