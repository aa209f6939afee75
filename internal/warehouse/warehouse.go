// Package warehouse is the transactional store behind the delivery
// workflow. Parcel and report records live in a single bbolt file
// under the warehouse root, next to the parcel directories and the
// symlink tree they describe. One bolt transaction spans one
// operation: commit on success, rollback on any error.
package warehouse

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"gioland/internal/domain"
)

const dbFileName = "data.db"

var (
	bucketParcels = []byte("parcels")
	bucketReports = []byte("reports")
)

// Connector owns the bolt database and the activity log for one
// warehouse root. It is safe for concurrent use; bolt serializes
// writers internally.
type Connector struct {
	db     *bolt.DB
	fsPath string
	log    *activityLog
}

// Open prepares the warehouse directory layout and opens the backing
// store. The returned Connector must be closed by the caller.
func Open(fsPath string) (*Connector, error) {
	for _, dir := range []string{"", "parcels", "reports", "tree", "filestorage"} {
		if err := os.MkdirAll(filepath.Join(fsPath, dir), 0o755); err != nil {
			return nil, fmt.Errorf("preparing warehouse dir: %w", err)
		}
	}
	db, err := bolt.Open(filepath.Join(fsPath, "filestorage", dbFileName), 0o644,
		&bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening warehouse store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketParcels, bucketReports} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing warehouse buckets: %w", err)
	}
	alog, err := openActivityLog(filepath.Join(fsPath, "activity.log"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Connector{db: db, fsPath: fsPath, log: alog}, nil
}

// Close releases the database and the activity log.
func (c *Connector) Close() error {
	c.log.Close()
	return c.db.Close()
}

// FSPath returns the warehouse root directory.
func (c *Connector) FSPath() string { return c.fsPath }

// Ping verifies the backing store is reachable.
func (c *Connector) Ping() error {
	return c.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketParcels) == nil {
			return fmt.Errorf("parcels bucket missing: %w", domain.ErrStorageFatal)
		}
		return nil
	})
}

// View runs fn in a read-only transaction.
func (c *Connector) View(fn func(*Warehouse) error) error {
	return c.db.View(func(tx *bolt.Tx) error {
		return fn(&Warehouse{tx: tx, fsPath: c.fsPath, actor: "[nobody]", log: c.log})
	})
}

// Update runs fn in a writable transaction attributed to actor. The
// note names the triggering operation in the activity log. The
// transaction commits iff fn returns nil.
func (c *Connector) Update(actor, note string, fn func(*Warehouse) error) error {
	if actor == "" {
		actor = "[nobody]"
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		return fn(&Warehouse{tx: tx, fsPath: c.fsPath, actor: actor, log: c.log})
	})
	if err != nil {
		c.log.Printf("abort %s (user %s): %v", note, actor, err)
		return err
	}
	c.log.Printf("commit %s (user %s)", note, actor)
	return nil
}

// Warehouse is a live transaction handle. It is only valid for the
// duration of the View/Update call that produced it.
type Warehouse struct {
	tx     *bolt.Tx
	fsPath string
	actor  string
	log    *activityLog
}

// Actor returns the user the current transaction is attributed to.
func (w *Warehouse) Actor() string { return w.actor }

func (w *Warehouse) ParcelsPath() string { return filepath.Join(w.fsPath, "parcels") }
func (w *Warehouse) ReportsPath() string { return filepath.Join(w.fsPath, "reports") }
func (w *Warehouse) TreePath() string    { return filepath.Join(w.fsPath, "tree") }

// NewParcel allocates a fresh parcel directory under parcels/ and
// registers an empty parcel record keyed by the directory name.
func (w *Warehouse) NewParcel() (*Parcel, error) {
	dir, err := os.MkdirTemp(w.ParcelsPath(), "")
	if err != nil {
		return nil, fmt.Errorf("creating parcel dir: %w", err)
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		return nil, fmt.Errorf("setting parcel dir mode: %w", err)
	}
	p := &Parcel{
		Name:     filepath.Base(dir),
		Metadata: map[string]string{},
		wh:       w,
	}
	if err := w.putParcel(p); err != nil {
		return nil, err
	}
	w.log.Printf("new parcel %q (user %s)", p.Name, w.actor)
	return p, nil
}

// GetParcel returns the parcel with the given name.
func (w *Warehouse) GetParcel(name string) (*Parcel, error) {
	raw := w.tx.Bucket(bucketParcels).Get([]byte(name))
	if raw == nil {
		return nil, fmt.Errorf("parcel %q: %w", name, domain.ErrNotFound)
	}
	var p Parcel
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding parcel %q: %w", name, err)
	}
	p.wh = w
	return &p, nil
}

// AllParcels returns every parcel in store order.
func (w *Warehouse) AllParcels() ([]*Parcel, error) {
	var out []*Parcel
	err := w.tx.Bucket(bucketParcels).ForEach(func(k, v []byte) error {
		var p Parcel
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("decoding parcel %q: %w", k, err)
		}
		p.wh = w
		out = append(out, &p)
		return nil
	})
	return out, err
}

// DeleteParcel removes the index entry only. The backing directory is
// left in place; callers owning the cleanup decision remove it.
func (w *Warehouse) DeleteParcel(name string) error {
	b := w.tx.Bucket(bucketParcels)
	if b.Get([]byte(name)) == nil {
		return fmt.Errorf("parcel %q: %w", name, domain.ErrNotFound)
	}
	if err := b.Delete([]byte(name)); err != nil {
		return err
	}
	w.log.Printf("deleting parcel %q (user %s)", name, w.actor)
	return nil
}

func (w *Warehouse) putParcel(p *Parcel) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding parcel %q: %w", p.Name, err)
	}
	return w.tx.Bucket(bucketParcels).Put([]byte(p.Name), raw)
}

// NewReport stores a report record with the next free integer id.
// Ids restart after deletion of the highest entry, matching
// max(existing)+1 allocation.
func (w *Warehouse) NewReport(r domain.Report) (*domain.Report, error) {
	b := w.tx.Bucket(bucketReports)
	maxID := 0
	cur := b.Cursor()
	if k, _ := cur.Last(); k != nil {
		maxID = int(binary.BigEndian.Uint64(k))
	}
	r.ID = maxID + 1
	r.User = w.actor
	r.UploadedAt = time.Now().UTC()
	raw, err := json.Marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	if err := b.Put(itob(r.ID), raw); err != nil {
		return nil, err
	}
	w.log.Printf("new report %d %q (user %s)", r.ID, r.Filename, w.actor)
	return &r, nil
}

// GetReport returns the report with the given id.
func (w *Warehouse) GetReport(id int) (*domain.Report, error) {
	raw := w.tx.Bucket(bucketReports).Get(itob(id))
	if raw == nil {
		return nil, fmt.Errorf("report %d: %w", id, domain.ErrNotFound)
	}
	var r domain.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decoding report %d: %w", id, err)
	}
	return &r, nil
}

// AllReports returns every report in id order.
func (w *Warehouse) AllReports() ([]domain.Report, error) {
	var out []domain.Report
	err := w.tx.Bucket(bucketReports).ForEach(func(k, v []byte) error {
		var r domain.Report
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("decoding report %q: %w", k, err)
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// DeleteReport removes the report record.
func (w *Warehouse) DeleteReport(id int) error {
	b := w.tx.Bucket(bucketReports)
	if b.Get(itob(id)) == nil {
		return fmt.Errorf("report %d: %w", id, domain.ErrNotFound)
	}
	if err := b.Delete(itob(id)); err != nil {
		return err
	}
	w.log.Printf("deleting report %d (user %s)", id, w.actor)
	return nil
}

func itob(v int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}
