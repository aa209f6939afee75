// Package notification announces workflow events on the external
// notification channel as RDF statements, and manages channel
// subscriptions.
package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gioland/internal/definitions"
	"gioland/internal/domain"
)

// Triple is one RDF statement about a workflow event.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// Dispatcher delivers notifications and subscriptions to the channel
// backend.
type Dispatcher interface {
	SendNotification(ctx context.Context, triples []Triple) error
	MakeSubscription(ctx context.Context, userID string, filters []map[string]string) error
}

// Event describes one history entry worth announcing.
type Event struct {
	ParcelName string
	HistoryID  int
	Title      string
	Time       time.Time
	Actor      string
	ActorName  string
	Type       domain.EventType
	// Decision is "accepted" or "rejected" on stage transitions,
	// empty otherwise.
	Decision string
	Metadata map[string]string
}

// Config holds the notification settings.
type Config struct {
	BaseURL  string
	TimeZone string
	// Suppress skips the dispatcher while still invoking local
	// listeners. Set in testing and staging deployments.
	Suppress bool
}

// Notifier builds RDF statements for workflow events and hands them
// to the dispatcher.
type Notifier struct {
	cfg        Config
	loc        *time.Location
	dispatcher Dispatcher

	mu        sync.Mutex
	listeners []func(Event, []Triple)
}

func NewNotifier(cfg Config, dispatcher Dispatcher) (*Notifier, error) {
	loc := time.UTC
	if cfg.TimeZone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("loading notification time zone: %w", err)
		}
	}
	return &Notifier{cfg: cfg, loc: loc, dispatcher: dispatcher}, nil
}

// AddListener registers fn to observe every event, including
// suppressed ones.
func (n *Notifier) AddListener(fn func(Event, []Triple)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, fn)
}

// Notify announces ev. Local listeners always run; the dispatcher is
// skipped when suppression is configured. Dispatcher failures are
// logged, not returned: a flaky channel must not fail the workflow
// operation that already committed.
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	triples := n.PrepareTriples(ev)

	n.mu.Lock()
	listeners := make([]func(Event, []Triple), len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.Unlock()
	for _, fn := range listeners {
		fn(ev, triples)
	}

	if n.cfg.Suppress {
		return
	}
	if err := n.dispatcher.SendNotification(ctx, triples); err != nil {
		log.Printf("notification: sending event for %s: %v", ev.ParcelName, err)
	}
}

// PrepareTriples builds the RDF statements for ev. Panics on an event
// type outside the known set; callers construct events from workflow
// code paths only.
func (n *Notifier) PrepareTriples(ev Event) []Triple {
	switch ev.Type {
	case domain.EventStageFinished, domain.EventComment:
	default:
		panic(fmt.Sprintf("notification: unknown event type %q", ev.Type))
	}

	subject := fmt.Sprintf("%s/parcel/%s#history-%d",
		n.cfg.BaseURL, ev.ParcelName, ev.HistoryID)
	add := func(triples []Triple, name, object string) []Triple {
		if object == "" {
			return triples
		}
		return append(triples, Triple{subject, definitions.RDFURI[name], object})
	}

	var triples []Triple
	triples = add(triples, "rdf_type", definitions.RDFURI["parcel_event"])
	triples = add(triples, "title",
		fmt.Sprintf("%s (stage reference: %s)", ev.Title, ev.ParcelName))
	triples = add(triples, "identifier",
		fmt.Sprintf("%s/parcel/%s", n.cfg.BaseURL, ev.ParcelName))
	triples = add(triples, "date",
		ev.Time.In(n.loc).Format(definitions.DateFormat["long"]))
	triples = add(triples, "actor", ev.Actor)
	triples = add(triples, "actor_name", ev.ActorName)
	triples = add(triples, "event_type", string(ev.Type))
	triples = add(triples, "decision", ev.Decision)

	md := ev.Metadata
	triples = add(triples, "locality", definitions.Countries.Label(md["country"]))
	triples = add(triples, "lot", definitions.Lots.Label(md["lot"]))
	triples = add(triples, "stage", definitions.StageLabel(md[definitions.KeyStage]))
	triples = add(triples, "product", definitions.Products.Label(md["product"]))
	triples = add(triples, "resolution", definitions.Resolutions.Label(md["resolution"]))
	triples = add(triples, "extent", definitions.Extents.Label(md["extent"]))
	triples = add(triples, "reference", definitions.References.Label(md["reference"]))
	return triples
}

// subscriptionFields maps subscription form fields to predicate names
// and the vocabulary their values come from.
var subscriptionFields = []struct {
	field     string
	predicate string
	vocab     definitions.Vocab
}{
	{"country", "locality", definitions.Countries},
	{"extent", "extent", definitions.Extents},
	{"resolution", "resolution", definitions.Resolutions},
	{"product", "product", definitions.Products},
}

// Subscribe registers userID on the channel with an optional filter.
// Filter values are vocabulary codes; unknown codes are rejected. An
// empty filter subscribes to everything.
func (n *Notifier) Subscribe(ctx context.Context, userID string, filters map[string]string) error {
	group := map[string]string{}
	for _, sf := range subscriptionFields {
		code := filters[sf.field]
		if code == "" {
			continue
		}
		if !sf.vocab.Has(code) {
			return fmt.Errorf("%w: unknown %s %q", domain.ErrValidation, sf.field, code)
		}
		group[definitions.RDFURI[sf.predicate]] = sf.vocab.Label(code)
	}
	groups := []map[string]string{}
	if len(group) > 0 {
		groups = append(groups, group)
	}
	if err := n.dispatcher.MakeSubscription(ctx, userID, groups); err != nil {
		return fmt.Errorf("creating subscription for %s: %w", userID, err)
	}
	return nil
}
