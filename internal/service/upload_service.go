package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gioland/internal/definitions"
	"gioland/internal/domain"
	"gioland/internal/event"
	"gioland/internal/warehouse"
)

// ChunkInput carries the resumable-upload form fields.
type ChunkInput struct {
	Filename    string
	Identifier  string
	TotalSize   int64
	ChunkNumber int
}

// UploadService defines the parcel file management contract.
type UploadService interface {
	SaveFile(ctx context.Context, actor, parcel, filename string, r io.Reader) error
	DeleteFile(ctx context.Context, actor, parcel, filename string) error
	WriteChunk(ctx context.Context, actor, parcel string, in ChunkInput, r io.Reader) error
	FinalizeUpload(ctx context.Context, actor, parcel string, in ChunkInput) error
	FilePath(ctx context.Context, parcel, filename string) (string, error)
}

type uploadService struct {
	wh     *warehouse.Connector
	auth   Authorizer
	hub    *event.Hub
	leases *uploadLeases
}

// NewUploadService creates a new UploadService implementation.
func NewUploadService(wh *warehouse.Connector, auth Authorizer, hub *event.Hub, cfg Config) UploadService {
	timeout := cfg.UploadLockTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &uploadService{
		wh:     wh,
		auth:   auth,
		hub:    hub,
		leases: newUploadLeases(timeout),
	}
}

func (s *uploadService) SaveFile(ctx context.Context, actor, parcel, filename string, r io.Reader) error {
	if !safeComponent(filename) {
		return fmt.Errorf("%w: bad filename %q", domain.ErrValidation, filename)
	}
	err := s.wh.Update(actor, "upload "+filename+" to "+parcel, func(wh *warehouse.Warehouse) error {
		p, err := s.uploadableParcel(ctx, wh, actor, parcel)
		if err != nil {
			return err
		}
		dest := filepath.Join(p.Path(), filename)
		if _, err := os.Stat(dest); err == nil {
			log.Printf("uploadService.SaveFile: %s already exists in %s, keeping original", filename, parcel)
			return domain.ErrUploadConflict
		}
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("creating %s: %w", filename, err)
		}
		defer f.Close()
		if _, err := io.Copy(f, r); err != nil {
			return fmt.Errorf("writing %s: %w", filename, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.hub.Publish(event.Event{Signal: event.FileUploaded, Parcel: parcel, Actor: actor, Filename: filename})
	return nil
}

func (s *uploadService) DeleteFile(ctx context.Context, actor, parcel, filename string) error {
	if !safeComponent(filename) {
		return fmt.Errorf("%w: bad filename %q", domain.ErrValidation, filename)
	}
	err := s.wh.Update(actor, "delete "+filename+" from "+parcel, func(wh *warehouse.Warehouse) error {
		p, err := s.uploadableParcel(ctx, wh, actor, parcel)
		if err != nil {
			return err
		}
		dest := filepath.Join(p.Path(), filename)
		if _, err := os.Stat(dest); err != nil {
			return fmt.Errorf("file %s: %w", filename, domain.ErrNotFound)
		}
		return os.Remove(dest)
	})
	if err != nil {
		return err
	}
	s.hub.Publish(event.Event{Signal: event.ParcelFileDeleted, Parcel: parcel, Actor: actor, Filename: filename})
	return nil
}

func (s *uploadService) WriteChunk(ctx context.Context, actor, parcel string, in ChunkInput, r io.Reader) error {
	if !safeComponent(in.Identifier) || in.ChunkNumber < 1 {
		return fmt.Errorf("%w: bad chunk parameters", domain.ErrValidation)
	}
	key := parcel + "/" + in.Identifier
	if !s.leases.acquire(key) {
		return domain.ErrUploadBusy
	}
	defer s.leases.release(key)

	var path string
	err := s.wh.View(func(wh *warehouse.Warehouse) error {
		p, err := s.uploadableParcel(ctx, wh, actor, parcel)
		if err != nil {
			return err
		}
		path = p.Path()
		return nil
	})
	if err != nil {
		return err
	}

	dir := filepath.Join(path, "temp_"+in.Identifier)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating chunk dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, strconv.Itoa(in.ChunkNumber)))
	if err != nil {
		return fmt.Errorf("creating chunk %d: %w", in.ChunkNumber, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing chunk %d: %w", in.ChunkNumber, err)
	}
	return nil
}

func (s *uploadService) FinalizeUpload(ctx context.Context, actor, parcel string, in ChunkInput) error {
	if !safeComponent(in.Identifier) || !safeComponent(in.Filename) {
		return fmt.Errorf("%w: bad upload parameters", domain.ErrValidation)
	}
	key := parcel + "/" + in.Identifier
	if !s.leases.acquire(key) {
		return domain.ErrUploadBusy
	}
	defer s.leases.release(key)

	err := s.wh.Update(actor, "assemble "+in.Filename+" in "+parcel, func(wh *warehouse.Warehouse) error {
		p, err := s.uploadableParcel(ctx, wh, actor, parcel)
		if err != nil {
			return err
		}
		dir := filepath.Join(p.Path(), "temp_"+in.Identifier)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("upload %s: %w", in.Identifier, domain.ErrChunksIncomplete)
		}

		// chunks assemble in numeric order, not name order
		var numbers []int
		var total int64
		for _, e := range entries {
			n, err := strconv.Atoi(e.Name())
			if err != nil {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return err
			}
			numbers = append(numbers, n)
			total += info.Size()
		}
		if total != in.TotalSize {
			return fmt.Errorf("upload %s has %d of %d bytes: %w",
				in.Identifier, total, in.TotalSize, domain.ErrChunksIncomplete)
		}
		sort.Ints(numbers)

		dest := filepath.Join(p.Path(), in.Filename)
		out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			log.Printf("uploadService.FinalizeUpload: %s already exists in %s, keeping original", in.Filename, parcel)
			return domain.ErrUploadConflict
		}
		if err != nil {
			return fmt.Errorf("creating %s: %w", in.Filename, err)
		}
		defer out.Close()
		for _, n := range numbers {
			data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(n)))
			if err != nil {
				return fmt.Errorf("reading chunk %d: %w", n, err)
			}
			if _, err := out.Write(data); err != nil {
				return fmt.Errorf("assembling %s: %w", in.Filename, err)
			}
		}
		return os.RemoveAll(dir)
	})
	if err != nil {
		return err
	}
	s.hub.Publish(event.Event{Signal: event.FileUploaded, Parcel: parcel, Actor: actor, Filename: in.Filename})
	return nil
}

func (s *uploadService) FilePath(ctx context.Context, parcel, filename string) (string, error) {
	if !safeComponent(filename) {
		return "", fmt.Errorf("%w: bad filename %q", domain.ErrValidation, filename)
	}
	var path string
	err := s.wh.View(func(wh *warehouse.Warehouse) error {
		p, err := wh.GetParcel(parcel)
		if err != nil {
			return err
		}
		path = filepath.Join(p.Path(), filename)
		return nil
	})
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file %s: %w", filename, domain.ErrNotFound)
	}
	return path, nil
}

// uploadableParcel loads a parcel and checks that actor may upload to
// it right now.
func (s *uploadService) uploadableParcel(ctx context.Context, wh *warehouse.Warehouse, actor, name string) (*warehouse.Parcel, error) {
	p, err := wh.GetParcel(name)
	if err != nil {
		return nil, err
	}
	dt := domain.DeliveryType(p.Metadata[definitions.KeyDeliveryType])
	graph, err := definitions.GraphFor(dt, p.Metadata["extent"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	stage, ok := graph.Get(p.Metadata[definitions.KeyStage])
	if !ok {
		return nil, fmt.Errorf("%w: parcel %s has unknown stage", domain.ErrValidation, name)
	}
	if !stage.FileUploading {
		return nil, fmt.Errorf("%w: stage %s does not accept files", domain.ErrValidation, stage.ID)
	}
	if !p.Uploading() {
		return nil, fmt.Errorf("%w: parcel %s is already finalized", domain.ErrValidation, name)
	}
	roles := append(append([]domain.Role{}, stage.Roles...), domain.RoleAdmin)
	if !s.auth.Authorize(ctx, actor, roles...) {
		return nil, domain.ErrForbidden
	}
	return p, nil
}

func safeComponent(s string) bool {
	return s != "" && s != "." && s != ".." &&
		!strings.ContainsAny(s, `/\`) && !strings.HasPrefix(s, ".")
}

// uploadLeaseExpiry caps how long a dead client can hold its lease.
const uploadLeaseExpiry = time.Minute

// uploadLeases serializes work on one resumable upload. A lease
// expires on its own so a crashed client cannot wedge the upload.
type uploadLeases struct {
	mu   sync.Mutex
	wait time.Duration
	held map[string]time.Time
}

func newUploadLeases(wait time.Duration) *uploadLeases {
	return &uploadLeases{wait: wait, held: make(map[string]time.Time)}
}

// acquire waits up to the configured budget for the current holder to
// release, then gives up. Overlapping chunk requests are normal with
// resumable clients; only a holder that outlives the budget surfaces
// as busy.
func (l *uploadLeases) acquire(key string) bool {
	deadline := time.Now().Add(l.wait)
	for {
		l.mu.Lock()
		exp, ok := l.held[key]
		if !ok || time.Now().After(exp) {
			l.held[key] = time.Now().Add(uploadLeaseExpiry)
			l.mu.Unlock()
			return true
		}
		l.mu.Unlock()
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (l *uploadLeases) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
