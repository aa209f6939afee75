package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gioland/internal/definitions"
	"gioland/internal/domain"
	"gioland/internal/warehouse"
)

// ReportService manages country delivery reports. Stored files are
// renamed to CDR_<COUNTRY>_<CATEGORY>_V<nn> with the original
// extension.
type ReportService interface {
	Upload(ctx context.Context, actor, country, category, filename string, r io.Reader) (*domain.Report, error)
	List(ctx context.Context, country string) ([]domain.Report, error)
	Get(ctx context.Context, id int) (*domain.Report, error)
	FilePath(ctx context.Context, id int) (string, error)
	Delete(ctx context.Context, actor string, id int) error
}

type reportService struct {
	wh   *warehouse.Connector
	auth Authorizer
}

// NewReportService creates a new ReportService implementation.
func NewReportService(wh *warehouse.Connector, auth Authorizer) ReportService {
	return &reportService{wh: wh, auth: auth}
}

func (s *reportService) Upload(ctx context.Context, actor, country, category, filename string, r io.Reader) (*domain.Report, error) {
	if !definitions.Countries.Has(country) {
		return nil, fmt.Errorf("%w: unknown country %q", domain.ErrValidation, country)
	}
	if !definitions.ReportCategories.Has(category) {
		return nil, fmt.Errorf("%w: unknown report category %q", domain.ErrValidation, category)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !definitions.ReportExtensions[ext] {
		return nil, fmt.Errorf("%w: report file type %q not accepted", domain.ErrValidation, ext)
	}
	if !s.auth.Authorize(ctx, actor, domain.RoleETC, domain.RoleAdmin) {
		return nil, domain.ErrForbidden
	}

	var report *domain.Report
	err := s.wh.Update(actor, "upload report "+filename, func(wh *warehouse.Warehouse) error {
		existing, err := wh.AllReports()
		if err != nil {
			return err
		}
		version := 1
		for _, r := range existing {
			if r.Country == country && r.Category == category {
				version++
			}
		}
		stored := fmt.Sprintf("CDR_%s_%s_V%02d%s",
			strings.ToUpper(country), strings.ToUpper(category), version, ext)

		report, err = wh.NewReport(domain.Report{
			Country:  country,
			Category: category,
			Filename: stored,
		})
		if err != nil {
			return err
		}
		dest := filepath.Join(wh.ReportsPath(), stored)
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		if _, err := io.Copy(f, r); err != nil {
			return fmt.Errorf("writing report file: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *reportService) List(ctx context.Context, country string) ([]domain.Report, error) {
	var out []domain.Report
	err := s.wh.View(func(wh *warehouse.Warehouse) error {
		reports, err := wh.AllReports()
		if err != nil {
			return err
		}
		for _, r := range reports {
			if country == "" || r.Country == country {
				out = append(out, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *reportService) Get(ctx context.Context, id int) (*domain.Report, error) {
	var report *domain.Report
	err := s.wh.View(func(wh *warehouse.Warehouse) error {
		r, err := wh.GetReport(id)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *reportService) FilePath(ctx context.Context, id int) (string, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	var path string
	err = s.wh.View(func(wh *warehouse.Warehouse) error {
		path = filepath.Join(wh.ReportsPath(), report.Filename)
		return nil
	})
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("report file %s: %w", report.Filename, domain.ErrNotFound)
	}
	return path, nil
}

func (s *reportService) Delete(ctx context.Context, actor string, id int) error {
	if !s.auth.Authorize(ctx, actor, domain.RoleAdmin) {
		return domain.ErrForbidden
	}
	var path string
	err := s.wh.Update(actor, fmt.Sprintf("delete report %d", id), func(wh *warehouse.Warehouse) error {
		r, err := wh.GetReport(id)
		if err != nil {
			return err
		}
		path = filepath.Join(wh.ReportsPath(), r.Filename)
		return wh.DeleteReport(id)
	})
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing report file: %w", err)
	}
	return nil
}
