package definitions

import (
	"fmt"

	"gioland/internal/domain"
)

// Stage is one node in a delivery workflow graph.
type Stage struct {
	ID    string
	Label string
	// Roles allowed to upload to and finalize this stage. Admins are
	// allowed everywhere regardless.
	Roles []domain.Role
	// Reject marks stages that may send work backward. RejectTarget
	// overrides the default backward target (the previous stage).
	Reject       bool
	RejectTarget string
	// FileUploading marks stages that accept file uploads.
	FileUploading bool
	// Last marks the terminal stage; it cannot be finalized.
	Last bool
	// Mergeable marks the stage at which partial deliveries may be
	// merged into one full delivery.
	Mergeable bool
	// CopyFilesFrom names an earlier stage whose files are copied into
	// a parcel entering this stage.
	CopyFilesFrom string
}

// StageGraph is the ordered stage list for one (delivery type, extent)
// combination. Graphs are immutable after construction; Validate is
// run at startup so a typo in the tables is a boot failure rather than
// a silent dead end mid-workflow.
type StageGraph struct {
	Name   string
	Stages []Stage

	index map[string]int
}

func newGraph(name string, stages ...Stage) *StageGraph {
	g := &StageGraph{Name: name, Stages: stages, index: make(map[string]int)}
	for i, s := range stages {
		g.index[s.ID] = i
	}
	return g
}

// Initial returns the graph's first stage.
func (g *StageGraph) Initial() Stage {
	return g.Stages[0]
}

// Get returns the stage with the given id.
func (g *StageGraph) Get(id string) (Stage, bool) {
	i, ok := g.index[id]
	if !ok {
		return Stage{}, false
	}
	return g.Stages[i], true
}

// Next returns the stage following id in graph order.
func (g *StageGraph) Next(id string) (Stage, bool) {
	i, ok := g.index[id]
	if !ok || i+1 >= len(g.Stages) {
		return Stage{}, false
	}
	return g.Stages[i+1], true
}

// RejectTargetOf returns the backward target for a rejecting stage:
// the explicit RejectTarget when declared, the previous stage
// otherwise.
func (g *StageGraph) RejectTargetOf(id string) (Stage, bool) {
	i, ok := g.index[id]
	if !ok || !g.Stages[i].Reject {
		return Stage{}, false
	}
	if t := g.Stages[i].RejectTarget; t != "" {
		return g.Get(t)
	}
	if i == 0 {
		return Stage{}, false
	}
	return g.Stages[i-1], true
}

// Validate checks the graph's internal consistency.
func (g *StageGraph) Validate() error {
	if len(g.Stages) == 0 {
		return fmt.Errorf("stage graph %s: empty", g.Name)
	}
	seen := make(map[string]bool)
	lastCount := 0
	for i, s := range g.Stages {
		if s.ID == "" || s.Label == "" {
			return fmt.Errorf("stage graph %s: stage %d missing id or label", g.Name, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("stage graph %s: duplicate stage id %q", g.Name, s.ID)
		}
		seen[s.ID] = true
		if s.Last {
			lastCount++
			if i != len(g.Stages)-1 {
				return fmt.Errorf("stage graph %s: terminal stage %q is not last", g.Name, s.ID)
			}
		}
		if s.Mergeable && s.Last {
			return fmt.Errorf("stage graph %s: terminal stage %q cannot be mergeable", g.Name, s.ID)
		}
		if s.RejectTarget != "" && !s.Reject {
			return fmt.Errorf("stage graph %s: stage %q has reject target but no reject flag", g.Name, s.ID)
		}
	}
	if g.Stages[0].Last {
		return fmt.Errorf("stage graph %s: initial stage is terminal", g.Name)
	}
	if lastCount != 1 {
		return fmt.Errorf("stage graph %s: expected one terminal stage, found %d", g.Name, lastCount)
	}
	for i, s := range g.Stages {
		if s.Reject {
			if i == 0 && s.RejectTarget == "" {
				return fmt.Errorf("stage graph %s: initial stage %q cannot reject", g.Name, s.ID)
			}
			if s.RejectTarget != "" {
				j, ok := g.index[s.RejectTarget]
				if !ok {
					return fmt.Errorf("stage graph %s: stage %q rejects to unknown stage %q",
						g.Name, s.ID, s.RejectTarget)
				}
				if j >= i {
					return fmt.Errorf("stage graph %s: stage %q reject target %q does not precede it",
						g.Name, s.ID, s.RejectTarget)
				}
			}
		}
		if s.CopyFilesFrom != "" {
			j, ok := g.index[s.CopyFilesFrom]
			if !ok || j >= i {
				return fmt.Errorf("stage graph %s: stage %q copies files from invalid stage %q",
					g.Name, s.ID, s.CopyFilesFrom)
			}
		}
	}
	return nil
}

var (
	sp  = []domain.Role{domain.RoleServiceProvider}
	etc = []domain.Role{domain.RoleETC}
	nrc = []domain.Role{domain.RoleNRC}
)

// CountryGraph is the full production chain for country deliveries.
var CountryGraph = newGraph("country",
	Stage{ID: "int", Label: "Service provider upload", Roles: sp, FileUploading: true},
	Stage{ID: "sch", Label: "Semantic check", Roles: etc, Reject: true},
	Stage{ID: "ver", Label: "Verification", Roles: nrc, FileUploading: true},
	Stage{ID: "vch", Label: "Verification check", Roles: etc, Reject: true},
	Stage{ID: "enh", Label: "Enhancement", Roles: nrc, FileUploading: true},
	Stage{ID: "ech", Label: "Enhancement check", Roles: etc, Reject: true, RejectTarget: "enh"},
	Stage{ID: "fin", Label: "Final integrated", Roles: etc, FileUploading: true},
	Stage{ID: "c-fsc", Label: "Final Semantic check", Roles: etc, Reject: true},
	Stage{ID: "fih", Label: "Final HRL", Last: true, CopyFilesFrom: "fin"},
)

// LotFullGraph is the short validation chain for full lot deliveries.
var LotFullGraph = newGraph("lot-full",
	Stage{ID: "int", Label: "Service provider upload", Roles: sp, FileUploading: true},
	Stage{ID: "fva", Label: "Final validated", Roles: etc, Reject: true, RejectTarget: "int"},
	Stage{ID: "fih", Label: "Final HRL", Last: true},
)

// LotPartialGraph adds an enhancement step where partial deliveries
// accumulate until they merge; the post-merge stages coincide with
// LotFullGraph so merged chains stay valid under extent=full.
var LotPartialGraph = newGraph("lot-partial",
	Stage{ID: "int", Label: "Service provider upload", Roles: sp, FileUploading: true},
	Stage{ID: "enh", Label: "Enhancement", Roles: nrc, FileUploading: true, Mergeable: true},
	Stage{ID: "fva", Label: "Final validated", Roles: etc, Reject: true, RejectTarget: "int"},
	Stage{ID: "fih", Label: "Final HRL", Last: true},
)

// StreamGraph is the minimal chain for continuous stream deliveries.
var StreamGraph = newGraph("stream",
	Stage{ID: "int", Label: "Service provider upload", Roles: sp, FileUploading: true},
	Stage{ID: "sth", Label: "Stream check", Roles: etc, Reject: true},
	Stage{ID: "fih", Label: "Final HRL", Last: true},
)

var allGraphs = []*StageGraph{CountryGraph, LotFullGraph, LotPartialGraph, StreamGraph}

// GraphFor selects the stage graph for a parcel's delivery type and
// extent. Extent only matters for lot deliveries.
func GraphFor(dt domain.DeliveryType, extent string) (*StageGraph, error) {
	switch dt {
	case domain.DeliveryCountry:
		return CountryGraph, nil
	case domain.DeliveryLot:
		if extent == "partial" {
			return LotPartialGraph, nil
		}
		return LotFullGraph, nil
	case domain.DeliveryStream:
		return StreamGraph, nil
	}
	return nil, fmt.Errorf("no stage graph for delivery type %q", dt)
}

// StageLabel resolves a stage id to its display label across all
// graphs. Ids shared between graphs carry the same label.
func StageLabel(id string) string {
	for _, g := range allGraphs {
		if s, ok := g.Get(id); ok {
			return s.Label
		}
	}
	return ""
}

// ValidateGraphs checks every stage graph. Called at startup.
func ValidateGraphs() error {
	for _, g := range allGraphs {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return nil
}
