package warehouse

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gioland/internal/definitions"
	"gioland/internal/domain"
)

// maxTreeSlots bounds the numbered symlinks per tree directory. More
// than this many live deliveries for one metadata combination points
// at an operational problem, so it fails loudly.
const maxTreeSlots = 100

// LinkInTree creates a numbered symlink to the parcel's directory
// under the metadata-keyed browse tree. Idempotent: a second call for
// the same parcel finds the existing link and returns. Slot numbers
// are allocated past the highest existing entry, so broken links left
// by deleted parcels are never reused.
func (p *Parcel) LinkInTree() error {
	dir := p.wh.TreePath()
	for _, field := range treeFields(domain.DeliveryType(p.Metadata[definitions.KeyDeliveryType])) {
		if v, ok := p.Metadata[field]; ok && v != "" {
			dir = filepath.Join(dir, v)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating tree dir: %w", err)
	}
	target := p.Path()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scanning tree dir: %w", err)
	}
	maxSlot := 0
	for _, e := range entries {
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if n > maxSlot {
			maxSlot = n
		}
		if e.Type()&os.ModeSymlink == 0 {
			continue
		}
		dest, err := os.Readlink(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if dest == target {
			return nil
		}
	}
	if maxSlot >= maxTreeSlots {
		return fmt.Errorf("tree dir %q: exhausted %d symlink slots: %w",
			dir, maxTreeSlots, domain.ErrStorageFatal)
	}
	link := filepath.Join(dir, strconv.Itoa(maxSlot+1))
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("linking parcel in tree: %w", err)
	}
	p.wh.log.Printf("linked %q in tree as %s (user %s)", p.Name, link, p.wh.actor)
	return nil
}

func treeFields(dt domain.DeliveryType) []string {
	var exclude []string
	switch dt {
	case domain.DeliveryCountry:
		exclude = definitions.CountryExcludeMetadata
	case domain.DeliveryStream:
		exclude = definitions.StreamExcludeMetadata
	}
	if len(exclude) == 0 {
		return definitions.TreeMetadata
	}
	skip := make(map[string]bool, len(exclude))
	for _, f := range exclude {
		skip[f] = true
	}
	var out []string
	for _, f := range definitions.TreeMetadata {
		if !skip[f] {
			out = append(out, f)
		}
	}
	return out
}
