package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gioland/internal/definitions"
	"gioland/internal/domain"
	"gioland/internal/email"
	"gioland/internal/event"
	"gioland/internal/notification"
	"gioland/internal/warehouse"
)

// Config holds the workflow settings shared by the services.
type Config struct {
	BaseURL             string
	AllowParcelDeletion bool
	UploadLockTimeout   time.Duration
	// AlertRecipients receive stage-ready mail when a delivery moves
	// forward.
	AlertRecipients []string
}

// Authorizer answers role membership and account questions. Satisfied
// by auth.Service.
type Authorizer interface {
	Authorize(ctx context.Context, userID string, roles ...domain.Role) bool
	Account(userID string) (domain.Account, bool)
	DisplayName(userID string) string
}

// ParcelSummary is the listing view of a delivery step.
type ParcelSummary struct {
	Name         string            `json:"name"`
	Metadata     map[string]string `json:"metadata"`
	Uploading    bool              `json:"uploading"`
	LastModified time.Time         `json:"last_modified"`
}

// ParcelDetail is the full view of a delivery step.
type ParcelDetail struct {
	ParcelSummary
	PrevParcels []string              `json:"prev_parcel_list,omitempty"`
	Files       []string              `json:"files"`
	Checksum    []domain.FileChecksum `json:"checksum,omitempty"`
	History     []domain.HistoryItem  `json:"history"`
}

// OverviewGroup is one product's slice of the delivery overview.
type OverviewGroup struct {
	Product string          `json:"product"`
	Label   string          `json:"label"`
	Parcels []ParcelSummary `json:"parcels"`
}

// ParcelService defines the delivery workflow contract.
type ParcelService interface {
	Create(ctx context.Context, actor string, dt domain.DeliveryType, fields map[string]string) (*ParcelDetail, error)
	Get(ctx context.Context, name string) (*ParcelDetail, error)
	Search(ctx context.Context, filters map[string]string) ([]ParcelSummary, error)
	Overview(ctx context.Context) ([]OverviewGroup, error)
	Chain(ctx context.Context, name string) ([]ParcelSummary, error)
	Finalize(ctx context.Context, actor, name string, reject bool) (*ParcelDetail, error)
	Merge(ctx context.Context, actor, name string) (*ParcelDetail, error)
	Comment(ctx context.Context, actor, name, text string) error
	Delete(ctx context.Context, actor, name string) error
}

type parcelService struct {
	wh       *warehouse.Connector
	auth     Authorizer
	notifier *notification.Notifier
	hub      *event.Hub
	mail     email.Sender
	cfg      Config
}

// NewParcelService creates a new ParcelService implementation.
func NewParcelService(
	wh *warehouse.Connector,
	auth Authorizer,
	notifier *notification.Notifier,
	hub *event.Hub,
	mail email.Sender,
	cfg Config,
) ParcelService {
	return &parcelService{
		wh:       wh,
		auth:     auth,
		notifier: notifier,
		hub:      hub,
		mail:     mail,
		cfg:      cfg,
	}
}

// authorized checks actor against the stage roles; admins pass
// everywhere.
func (s *parcelService) authorized(ctx context.Context, actor string, roles []domain.Role) bool {
	return s.auth.Authorize(ctx, actor, append(append([]domain.Role{}, roles...), domain.RoleAdmin)...)
}

func (s *parcelService) Create(ctx context.Context, actor string, dt domain.DeliveryType, fields map[string]string) (*ParcelDetail, error) {
	md, err := validateDeliveryFields(dt, fields)
	if err != nil {
		return nil, err
	}
	graph, err := definitions.GraphFor(dt, md["extent"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	initial := graph.Initial()
	if !s.authorized(ctx, actor, initial.Roles) {
		return nil, domain.ErrForbidden
	}

	var detail *ParcelDetail
	err = s.wh.Update(actor, "create "+string(dt)+" delivery", func(wh *warehouse.Warehouse) error {
		p, err := wh.NewParcel()
		if err != nil {
			return err
		}
		md[definitions.KeyStage] = initial.ID
		md[definitions.KeyDeliveryType] = string(dt)
		md[definitions.KeyUser] = actor
		if err := p.SaveMetadata(md); err != nil {
			return err
		}
		if _, err := p.AddHistoryItem("New upload", time.Now().UTC(), actor, ""); err != nil {
			return err
		}
		if err := p.LinkInTree(); err != nil {
			return err
		}
		detail, err = parcelDetail(p)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.hub.Publish(event.Event{Signal: event.ParcelCreated, Parcel: detail.Name, Actor: actor})
	return detail, nil
}

func (s *parcelService) Get(ctx context.Context, name string) (*ParcelDetail, error) {
	var detail *ParcelDetail
	err := s.wh.View(func(wh *warehouse.Warehouse) error {
		p, err := wh.GetParcel(name)
		if err != nil {
			return err
		}
		detail, err = parcelDetail(p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *parcelService) Search(ctx context.Context, filters map[string]string) ([]ParcelSummary, error) {
	wanted := map[string]string{}
	for _, f := range definitions.SearchMetadata {
		if v := filters[f]; v != "" {
			wanted[f] = v
		}
	}

	var out []ParcelSummary
	err := s.wh.View(func(wh *warehouse.Warehouse) error {
		parcels, err := wh.AllParcels()
		if err != nil {
			return err
		}
		for _, p := range parcels {
			if p.Metadata[definitions.KeyNextParcel] != "" {
				continue
			}
			match := true
			for k, v := range wanted {
				if p.Metadata[k] != v {
					match = false
					break
				}
			}
			if match {
				out = append(out, parcelSummary(p))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

func (s *parcelService) Overview(ctx context.Context) ([]OverviewGroup, error) {
	tails, err := s.Search(ctx, nil)
	if err != nil {
		return nil, err
	}
	byProduct := map[string][]ParcelSummary{}
	for _, t := range tails {
		byProduct[t.Metadata["product"]] = append(byProduct[t.Metadata["product"]], t)
	}
	var out []OverviewGroup
	for _, term := range definitions.Products {
		parcels := byProduct[term.Code]
		if len(parcels) == 0 {
			continue
		}
		sort.Slice(parcels, func(i, j int) bool {
			return parcels[i].Metadata["country"] < parcels[j].Metadata["country"]
		})
		out = append(out, OverviewGroup{Product: term.Code, Label: term.Label, Parcels: parcels})
	}
	return out, nil
}

func (s *parcelService) Chain(ctx context.Context, name string) ([]ParcelSummary, error) {
	var out []ParcelSummary
	err := s.wh.View(func(wh *warehouse.Warehouse) error {
		p, err := wh.GetParcel(name)
		if err != nil {
			return err
		}

		seen := map[string]bool{}

		// lineage collects all strict ancestors oldest first, walking
		// into every branch of a merged chain.
		var lineage func(p *warehouse.Parcel) []ParcelSummary
		lineage = func(p *warehouse.Parcel) []ParcelSummary {
			prevs := p.PrevParcels
			if len(prevs) == 0 {
				if prev := p.Metadata[definitions.KeyPrevParcel]; prev != "" {
					prevs = []string{prev}
				}
			}
			var items []ParcelSummary
			for _, prev := range prevs {
				if seen[prev] {
					continue
				}
				seen[prev] = true
				pp, err := wh.GetParcel(prev)
				if err != nil {
					continue
				}
				items = append(items, lineage(pp)...)
				items = append(items, parcelSummary(pp))
			}
			return items
		}

		seen[p.Name] = true
		out = append(lineage(p), parcelSummary(p))

		// then forward to the tail
		for {
			next := p.Metadata[definitions.KeyNextParcel]
			if next == "" || seen[next] {
				return nil
			}
			seen[next] = true
			np, err := wh.GetParcel(next)
			if err != nil {
				return nil
			}
			out = append(out, parcelSummary(np))
			p = np
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *parcelService) Finalize(ctx context.Context, actor, name string, reject bool) (*ParcelDetail, error) {
	var (
		detail   *ParcelDetail
		finished domain.HistoryItem
		oldMeta  map[string]string
		oldStage definitions.Stage
	)
	err := s.wh.Update(actor, "finalize "+name, func(wh *warehouse.Warehouse) error {
		p, err := wh.GetParcel(name)
		if err != nil {
			return err
		}
		dt := domain.DeliveryType(p.Metadata[definitions.KeyDeliveryType])
		graph, err := definitions.GraphFor(dt, p.Metadata["extent"])
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		stage, ok := graph.Get(p.Metadata[definitions.KeyStage])
		if !ok {
			return fmt.Errorf("%w: parcel %s has unknown stage", domain.ErrValidation, name)
		}
		if stage.Last {
			return fmt.Errorf("%w: terminal stage cannot be finalized", domain.ErrForbidden)
		}
		if !s.authorized(ctx, actor, stage.Roles) {
			return domain.ErrForbidden
		}
		if reject && !stage.Reject {
			return fmt.Errorf("%w: stage %s cannot reject", domain.ErrForbidden, stage.ID)
		}
		if !p.Uploading() {
			return fmt.Errorf("%w: parcel %s is already finalized", domain.ErrForbidden, name)
		}

		if err := p.Finalize(); err != nil {
			return err
		}
		if reject {
			if err := p.SaveMetadata(map[string]string{definitions.KeyRejection: "true"}); err != nil {
				return err
			}
		}

		var next definitions.Stage
		if reject {
			next, ok = graph.RejectTargetOf(stage.ID)
		} else {
			next, ok = graph.Next(stage.ID)
		}
		if !ok {
			return fmt.Errorf("%w: no next stage after %s", domain.ErrValidation, stage.ID)
		}

		np, err := wh.NewParcel()
		if err != nil {
			return err
		}
		nmd := inheritMetadata(p.Metadata)
		nmd[definitions.KeyStage] = next.ID
		nmd[definitions.KeyPrevParcel] = p.Name
		nmd[definitions.KeyUser] = actor
		if err := np.SaveMetadata(nmd); err != nil {
			return err
		}
		if err := p.SaveMetadata(map[string]string{definitions.KeyNextParcel: np.Name}); err != nil {
			return err
		}

		now := time.Now().UTC()
		finished, err = p.AddHistoryItem(stage.Label+" finished", now, actor,
			fmt.Sprintf(`Next step: <a href="%s/parcel/%s">%s</a>`,
				s.cfg.BaseURL, np.Name, next.Label))
		if err != nil {
			return err
		}
		if _, err := np.AddHistoryItem("Ready for "+next.Label, now, actor,
			fmt.Sprintf(`Previous step: <a href="%s/parcel/%s">%s</a>`,
				s.cfg.BaseURL, p.Name, stage.Label)); err != nil {
			return err
		}

		if next.CopyFilesFrom != "" {
			src, err := findAncestorAtStage(wh, p, next.CopyFilesFrom)
			if err != nil {
				return err
			}
			if err := copyParcelFiles(src, np); err != nil {
				return err
			}
		}
		if err := np.LinkInTree(); err != nil {
			return err
		}
		if err := purgeChunkDirs(p.Path()); err != nil {
			return err
		}

		oldMeta = copyMetadata(p.Metadata)
		oldStage = stage
		detail, err = parcelDetail(np)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.hub.Publish(event.Event{
		Signal: event.ParcelFinalized, Parcel: name, Actor: actor,
		NextParcel: detail.Name,
	})
	decision := "accepted"
	if reject {
		decision = "rejected"
	}
	s.notifier.Notify(ctx, notification.Event{
		ParcelName: name,
		HistoryID:  finished.ID,
		Title:      finished.Title,
		Time:       finished.Time,
		Actor:      actor,
		ActorName:  s.auth.DisplayName(actor),
		Type:       domain.EventStageFinished,
		Decision:   decision,
		Metadata:   oldMeta,
	})
	s.sendStageMail(ctx, reject, name, oldStage, oldMeta)
	return detail, nil
}

// similarFields identify the partial deliveries of one lot: every
// tail sharing these with the triggering parcel merges with it.
var similarFields = []string{"country", "lot", "product", "resolution", "reference"}

func (s *parcelService) Merge(ctx context.Context, actor, name string) (*ParcelDetail, error) {
	var (
		detail   *ParcelDetail
		names    []string
		finished []domain.HistoryItem
		metas    []map[string]string
	)
	err := s.wh.Update(actor, "merge "+name, func(wh *warehouse.Warehouse) error {
		graph := definitions.LotPartialGraph
		trigger, err := wh.GetParcel(name)
		if err != nil {
			return err
		}
		stage, ok := graph.Get(trigger.Metadata[definitions.KeyStage])
		if !ok || !stage.Mergeable {
			return fmt.Errorf("%w: parcel %s is not at a mergeable stage", domain.ErrValidation, name)
		}
		if domain.DeliveryType(trigger.Metadata[definitions.KeyDeliveryType]) != domain.DeliveryLot ||
			trigger.Metadata["extent"] != "partial" {
			return fmt.Errorf("%w: parcel %s is not a partial lot delivery", domain.ErrValidation, name)
		}
		if trigger.Metadata[definitions.KeyNextParcel] != "" {
			return fmt.Errorf("%w: parcel %s already has a next step", domain.ErrValidation, name)
		}
		if !s.authorized(ctx, actor, stage.Roles) {
			return domain.ErrForbidden
		}

		all, err := wh.AllParcels()
		if err != nil {
			return err
		}
		siblings := []*warehouse.Parcel{trigger}
		for _, p := range all {
			if p.Name == trigger.Name ||
				p.Metadata[definitions.KeyNextParcel] != "" ||
				p.Metadata[definitions.KeyStage] != stage.ID ||
				domain.DeliveryType(p.Metadata[definitions.KeyDeliveryType]) != domain.DeliveryLot ||
				p.Metadata["extent"] != "partial" {
				continue
			}
			match := true
			for _, f := range similarFields {
				if p.Metadata[f] != trigger.Metadata[f] {
					match = false
					break
				}
			}
			if match {
				siblings = append(siblings, p)
			}
		}
		if len(siblings) < 2 {
			return fmt.Errorf("%w: no other partial delivery to merge with", domain.ErrValidation)
		}
		sort.Slice(siblings[1:], func(i, j int) bool {
			return siblings[i+1].Name < siblings[j+1].Name
		})
		names = make([]string, len(siblings))
		for i, p := range siblings {
			names[i] = p.Name
		}

		next, ok := graph.Next(stage.ID)
		if !ok {
			return fmt.Errorf("%w: no next stage after %s", domain.ErrValidation, stage.ID)
		}

		np, err := wh.NewParcel()
		if err != nil {
			return err
		}
		nmd := inheritMetadata(trigger.Metadata)
		nmd["extent"] = "full"
		delete(nmd, "coverage")
		nmd[definitions.KeyMerged] = "1"
		nmd[definitions.KeyStage] = next.ID
		nmd[definitions.KeyUser] = actor
		if err := np.SaveMetadata(nmd); err != nil {
			return err
		}
		if err := np.SetPrevParcels(names); err != nil {
			return err
		}

		now := time.Now().UTC()
		var lines []string
		for _, p := range siblings {
			if p.Uploading() {
				if err := p.Finalize(); err != nil {
					return err
				}
			}
			if err := p.SaveMetadata(map[string]string{
				definitions.KeyNextParcel: np.Name,
				definitions.KeyMerged:     "1",
			}); err != nil {
				return err
			}
			if err := p.LinkInTree(); err != nil {
				return err
			}
			item, err := p.AddHistoryItem(stage.Label+" finished", now, actor,
				fmt.Sprintf(`Next step: <a href="%s/parcel/%s">%s</a>`,
					s.cfg.BaseURL, np.Name, next.Label))
			if err != nil {
				return err
			}
			finished = append(finished, item)
			metas = append(metas, copyMetadata(p.Metadata))
			lines = append(lines, fmt.Sprintf(`Previous step: <a href="%s/parcel/%s">%s</a> (%s)`,
				s.cfg.BaseURL, p.Name, stage.Label, p.Metadata["coverage"]))
		}
		if _, err := np.AddHistoryItem("Ready for "+next.Label, now, actor,
			strings.Join(lines, "<br>")); err != nil {
			return err
		}
		if err := np.LinkInTree(); err != nil {
			return err
		}
		detail, err = parcelDetail(np)
		return err
	})
	if err != nil {
		return nil, err
	}

	for i, name := range names {
		s.hub.Publish(event.Event{
			Signal: event.ParcelFinalized, Parcel: name, Actor: actor,
			NextParcel: detail.Name,
		})
		s.notifier.Notify(ctx, notification.Event{
			ParcelName: name,
			HistoryID:  finished[i].ID,
			Title:      finished[i].Title,
			Time:       finished[i].Time,
			Actor:      actor,
			ActorName:  s.auth.DisplayName(actor),
			Type:       domain.EventStageFinished,
			Decision:   "accepted",
			Metadata:   metas[i],
		})
	}
	return detail, nil
}

func (s *parcelService) Comment(ctx context.Context, actor, name, text string) error {
	if actor == "" {
		return domain.ErrForbidden
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty comment", domain.ErrValidation)
	}
	var (
		item domain.HistoryItem
		meta map[string]string
	)
	err := s.wh.Update(actor, "comment on "+name, func(wh *warehouse.Warehouse) error {
		p, err := wh.GetParcel(name)
		if err != nil {
			return err
		}
		item, err = p.AddHistoryItem("Comment", time.Now().UTC(), actor, html.EscapeString(text))
		if err != nil {
			return err
		}
		meta = copyMetadata(p.Metadata)
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, notification.Event{
		ParcelName: name,
		HistoryID:  item.ID,
		Title:      item.Title,
		Time:       item.Time,
		Actor:      actor,
		ActorName:  s.auth.DisplayName(actor),
		Type:       domain.EventComment,
		Metadata:   meta,
	})
	return nil
}

func (s *parcelService) Delete(ctx context.Context, actor, name string) error {
	if !s.cfg.AllowParcelDeletion {
		return domain.ErrDeletionDisabled
	}
	if !s.auth.Authorize(ctx, actor, domain.RoleAdmin) {
		return domain.ErrForbidden
	}

	var doomedPaths []string
	err := s.wh.Update(actor, "delete "+name, func(wh *warehouse.Warehouse) error {
		p, err := wh.GetParcel(name)
		if err != nil {
			return err
		}

		// the requested parcel and everything downstream of it
		preds := append([]string(nil), p.PrevParcels...)
		if prev := p.Metadata[definitions.KeyPrevParcel]; prev != "" && len(preds) == 0 {
			preds = []string{prev}
		}
		for {
			doomedPaths = append(doomedPaths, p.Path())
			next := p.Metadata[definitions.KeyNextParcel]
			if err := wh.DeleteParcel(p.Name); err != nil {
				return err
			}
			if next == "" {
				break
			}
			p, err = wh.GetParcel(next)
			if err != nil {
				return err
			}
		}

		// reopen the direct predecessors so the step can be redone
		now := time.Now().UTC()
		for _, prevName := range preds {
			prev, err := wh.GetParcel(prevName)
			if err != nil {
				continue
			}
			if err := prev.RemoveMetadata(
				definitions.KeyUploadTime, definitions.KeyNextParcel); err != nil {
				return err
			}
			if _, err := prev.AddHistoryItem("Next step deleted", now, actor,
				fmt.Sprintf("Parcel %s was deleted", name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, path := range doomedPaths {
		if err := os.RemoveAll(path); err != nil {
			log.Printf("parcelService.Delete: removing %s: %v", path, err)
		}
	}
	s.hub.Publish(event.Event{Signal: event.ParcelDeleted, Parcel: name, Actor: actor})
	return nil
}

// sendStageMail alerts the configured recipients on forward moves and
// the uploader on rejections. Mail failures are logged, never
// returned.
func (s *parcelService) sendStageMail(ctx context.Context, reject bool, name string, stage definitions.Stage, meta map[string]string) {
	if s.mail == nil {
		return
	}
	if reject {
		account, ok := s.auth.Account(meta[definitions.KeyUser])
		if !ok || account.Email == "" {
			return
		}
		if err := s.mail.SendRejectionEmail(ctx, account.Email, account.DisplayName, name, stage.Label); err != nil {
			log.Printf("parcelService: rejection mail for %s: %v", name, err)
		}
		return
	}
	for _, to := range s.cfg.AlertRecipients {
		if err := s.mail.SendStageReadyEmail(ctx, to, to, name, stage.Label); err != nil {
			log.Printf("parcelService: stage ready mail for %s: %v", name, err)
		}
	}
}

// validateDeliveryFields whitelists and validates the posted form
// fields for a new delivery. Unknown fields are dropped, per-type
// exclusions applied, and vocabulary membership enforced.
func validateDeliveryFields(dt domain.DeliveryType, fields map[string]string) (map[string]string, error) {
	valid := false
	for _, known := range domain.DeliveryTypes {
		if dt == known {
			valid = true
		}
	}
	if !valid {
		return nil, fmt.Errorf("%w: unknown delivery type %q", domain.ErrValidation, dt)
	}

	md := map[string]string{}
	for _, f := range definitions.EditableMetadata {
		if v := fields[f]; v != "" {
			md[f] = v
		}
	}
	switch dt {
	case domain.DeliveryCountry:
		for _, f := range definitions.CountryExcludeMetadata {
			delete(md, f)
		}
	case domain.DeliveryStream:
		for _, f := range definitions.StreamExcludeMetadata {
			delete(md, f)
		}
	}

	required := []string{"country", "lot", "product", "resolution", "extent"}
	switch dt {
	case domain.DeliveryCountry:
		required = []string{"country", "lot", "product", "resolution"}
	case domain.DeliveryStream:
		required = []string{"lot", "product"}
	}
	for _, f := range required {
		if md[f] == "" {
			return nil, fmt.Errorf("%w: %s is required", domain.ErrValidation, f)
		}
	}

	if c, ok := md["country"]; ok && !definitions.Countries.Has(c) {
		return nil, fmt.Errorf("%w: unknown country %q", domain.ErrValidation, c)
	}
	if !definitions.Lots.Has(md["lot"]) {
		return nil, fmt.Errorf("%w: unknown lot %q", domain.ErrValidation, md["lot"])
	}
	products := definitions.LotProducts(md["lot"], dt)
	found := false
	for _, p := range products {
		if p == md["product"] {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: product %q does not belong to %s",
			domain.ErrValidation, md["product"], md["lot"])
	}
	if r, ok := md["resolution"]; ok && !definitions.Resolutions.Has(r) {
		return nil, fmt.Errorf("%w: unknown resolution %q", domain.ErrValidation, r)
	}

	if dt != domain.DeliveryStream {
		if md["reference"] == "" {
			md["reference"] = definitions.DefaultReference
		}
		if !definitions.References.Has(md["reference"]) {
			return nil, fmt.Errorf("%w: unknown reference year %q", domain.ErrValidation, md["reference"])
		}
	}

	switch md["extent"] {
	case "partial":
		if md["coverage"] == "" {
			return nil, fmt.Errorf("%w: coverage is mandatory for partial deliveries", domain.ErrValidation)
		}
	case "full":
		delete(md, "coverage")
	case "":
	default:
		return nil, fmt.Errorf("%w: unknown extent %q", domain.ErrValidation, md["extent"])
	}
	return md, nil
}

// inheritMetadata copies the delivery facts a successor step keeps.
func inheritMetadata(md map[string]string) map[string]string {
	out := map[string]string{}
	for _, f := range definitions.EditableMetadata {
		if v := md[f]; v != "" {
			out[f] = v
		}
	}
	out[definitions.KeyDeliveryType] = md[definitions.KeyDeliveryType]
	return out
}

func copyMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

func parcelSummary(p *warehouse.Parcel) ParcelSummary {
	return ParcelSummary{
		Name:         p.Name,
		Metadata:     copyMetadata(p.Metadata),
		Uploading:    p.Uploading(),
		LastModified: p.LastModified(),
	}
}

func parcelDetail(p *warehouse.Parcel) (*ParcelDetail, error) {
	files, err := p.Files()
	if err != nil {
		return nil, err
	}
	return &ParcelDetail{
		ParcelSummary: parcelSummary(p),
		PrevParcels:   append([]string(nil), p.PrevParcels...),
		Files:         files,
		Checksum:      append([]domain.FileChecksum(nil), p.Checksum...),
		History:       append([]domain.HistoryItem(nil), p.History...),
	}, nil
}

// findAncestorAtStage walks the predecessor chain until it reaches the
// parcel that was at the wanted stage.
func findAncestorAtStage(wh *warehouse.Warehouse, p *warehouse.Parcel, stageID string) (*warehouse.Parcel, error) {
	for cur := p; ; {
		if cur.Metadata[definitions.KeyStage] == stageID {
			return cur, nil
		}
		prev := cur.Metadata[definitions.KeyPrevParcel]
		if len(cur.PrevParcels) > 0 {
			prev = cur.PrevParcels[0]
		}
		if prev == "" {
			return nil, fmt.Errorf("no ancestor at stage %s for parcel %s: %w",
				stageID, p.Name, domain.ErrStorageFatal)
		}
		var err error
		cur, err = wh.GetParcel(prev)
		if err != nil {
			return nil, err
		}
	}
}

// copyParcelFiles copies the visible files of src into dst.
func copyParcelFiles(src, dst *warehouse.Parcel) error {
	files, err := src.Files()
	if err != nil {
		return err
	}
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(src.Path(), f))
		if err != nil {
			return fmt.Errorf("copying %s: %w", f, err)
		}
		if err := os.WriteFile(filepath.Join(dst.Path(), f), data, 0o644); err != nil {
			return fmt.Errorf("copying %s: %w", f, err)
		}
	}
	return nil
}

// purgeChunkDirs removes leftover chunked-upload scratch directories.
func purgeChunkDirs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "temp_") {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
