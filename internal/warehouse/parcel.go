package warehouse

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"gioland/internal/definitions"
	"gioland/internal/domain"
)

// Parcel is one unit of delivery: a metadata record plus a directory
// of uploaded files. The struct is the persisted JSON document; the
// unexported handle ties it back to the transaction that loaded it.
type Parcel struct {
	Name        string               `json:"name"`
	Metadata    map[string]string    `json:"metadata"`
	PrevParcels []string             `json:"prev_parcel_list,omitempty"`
	Checksum    []domain.FileChecksum `json:"checksum,omitempty"`
	History     []domain.HistoryItem `json:"history"`

	wh *Warehouse
}

// Uploading reports whether the parcel still accepts files. A parcel
// is uploading until Finalize records its upload_time.
func (p *Parcel) Uploading() bool {
	_, sealed := p.Metadata[definitions.KeyUploadTime]
	return !sealed
}

// Path returns the parcel's directory under parcels/.
func (p *Parcel) Path() string {
	return filepath.Join(p.wh.ParcelsPath(), p.Name)
}

// Files lists the parcel's visible files, sorted by name. Hidden
// entries and subdirectories (chunk scratch space) are skipped.
func (p *Parcel) Files() ([]string, error) {
	entries, err := os.ReadDir(p.Path())
	if err != nil {
		return nil, fmt.Errorf("listing parcel %q: %w", p.Name, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// SaveMetadata merges new key/value pairs into the parcel's metadata.
// Keys and values must be printable ASCII; existing keys absent from
// the update are preserved.
func (p *Parcel) SaveMetadata(md map[string]string) error {
	for k, v := range md {
		if err := ensureASCII(k); err != nil {
			return err
		}
		if err := ensureASCII(v); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(md))
	for k, v := range md {
		p.Metadata[k] = v
		keys = append(keys, k)
	}
	if err := p.wh.putParcel(p); err != nil {
		return err
	}
	p.wh.log.Printf("metadata update for %q: %v (user %s)", p.Name, keys, p.wh.actor)
	return nil
}

// RemoveMetadata deletes keys from the parcel's metadata. Missing
// keys are ignored.
func (p *Parcel) RemoveMetadata(keys ...string) error {
	for _, k := range keys {
		delete(p.Metadata, k)
	}
	if err := p.wh.putParcel(p); err != nil {
		return err
	}
	p.wh.log.Printf("metadata removal for %q: %v (user %s)", p.Name, keys, p.wh.actor)
	return nil
}

// SetPrevParcels records the parcel's predecessors.
func (p *Parcel) SetPrevParcels(names []string) error {
	for _, n := range names {
		if err := ensureASCII(n); err != nil {
			return err
		}
	}
	p.PrevParcels = append([]string(nil), names...)
	if err := p.wh.putParcel(p); err != nil {
		return err
	}
	p.wh.log.Printf("metadata update for %q: [prev_parcel_list] (user %s)",
		p.Name, p.wh.actor)
	return nil
}

// Finalize seals the parcel: computes the checksum manifest over its
// visible files and records the upload time. After this the parcel is
// no longer uploading.
func (p *Parcel) Finalize() error {
	sum, err := checksumDir(p.Path())
	if err != nil {
		return err
	}
	p.Checksum = sum
	p.wh.log.Printf("finalizing %q (user %s)", p.Name, p.wh.actor)
	return p.SaveMetadata(map[string]string{
		definitions.KeyUploadTime: time.Now().UTC().Format(time.RFC3339),
	})
}

// AddHistoryItem appends an audit entry and returns it. Ids are
// 1-based and strictly increasing per parcel.
func (p *Parcel) AddHistoryItem(title string, t time.Time, actor, descriptionHTML string) (domain.HistoryItem, error) {
	item := domain.HistoryItem{
		ID:              len(p.History) + 1,
		Title:           title,
		Time:            t,
		Actor:           actor,
		DescriptionHTML: descriptionHTML,
	}
	p.History = append(p.History, item)
	if err := p.wh.putParcel(p); err != nil {
		return domain.HistoryItem{}, err
	}
	return item, nil
}

// LastModified returns the time of the most recent history entry.
func (p *Parcel) LastModified() time.Time {
	if len(p.History) == 0 {
		return time.Time{}
	}
	return p.History[len(p.History)-1].Time
}

func ensureASCII(s string) error {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return fmt.Errorf("metadata must be ascii text: %w", domain.ErrValidation)
		}
	}
	return nil
}

// checksumDir builds an md5 manifest over the visible regular files
// of dir, in name order.
func checksumDir(dir string) ([]domain.FileChecksum, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("checksumming %q: %w", dir, err)
	}
	var out []domain.FileChecksum
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("checksumming %q: %w", e.Name(), err)
		}
		h := md5.New()
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("checksumming %q: %w", e.Name(), err)
		}
		out = append(out, domain.FileChecksum{
			File: e.Name(),
			MD5:  hex.EncodeToString(h.Sum(nil)),
		})
	}
	return out, nil
}
