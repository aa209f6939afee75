// Package definitions holds the static configuration of the delivery
// workflow: vocabularies, metadata field lists, stage graphs and the
// URI table used for outgoing notifications. Pure data plus load-time
// validation, no storage access.
package definitions

import "gioland/internal/domain"

// Term is one vocabulary entry, a stable code with a display label.
type Term struct {
	Code  string
	Label string
}

// Vocab is an ordered code/label list. Order matters for display.
type Vocab []Term

// Has reports whether code belongs to the vocabulary.
func (v Vocab) Has(code string) bool {
	for _, t := range v {
		if t.Code == code {
			return true
		}
	}
	return false
}

// Label returns the display label for code, or "" when unknown.
func (v Vocab) Label(code string) string {
	for _, t := range v {
		if t.Code == code {
			return t.Label
		}
	}
	return ""
}

// Codes returns the vocabulary codes in declaration order.
func (v Vocab) Codes() []string {
	out := make([]string, len(v))
	for i, t := range v {
		out[i] = t.Code
	}
	return out
}

var Countries = Vocab{
	{"at", "Austria"}, {"be", "Belgium"}, {"bg", "Bulgaria"},
	{"cy", "Cyprus"}, {"cz", "Czech Republic"}, {"dk", "Denmark"},
	{"ee", "Estonia"}, {"fi", "Finland"}, {"fr", "France"},
	{"de", "Germany"}, {"gr", "Greece"}, {"hu", "Hungary"},
	{"is", "Iceland"}, {"ie", "Ireland"}, {"it", "Italy"},
	{"lv", "Latvia"}, {"li", "Liechtenstein"}, {"lt", "Lithuania"},
	{"lu", "Luxembourg"}, {"mt", "Malta"}, {"nl", "Netherlands"},
	{"no", "Norway"}, {"pl", "Poland"}, {"pt", "Portugal"},
	{"ro", "Romania"}, {"sk", "Slovakia"}, {"si", "Slovenia"},
	{"es", "Spain"}, {"se", "Sweden"}, {"ch", "Switzerland"},
	{"tr", "Turkey"}, {"gb", "United Kingdom"},
}

var Lots = Vocab{
	{"lot1", "Lot 1 (Imperviousness)"},
	{"lot2", "Lot 2 (Forest)"},
	{"lot3", "Lot 3 (Grassland)"},
	{"lot4", "Lot 4 (Wetlands)"},
	{"lot5", "Lot 5 (Water bodies)"},
}

var Products = Vocab{
	{"imd", "Imperviousness Degree"},
	{"imc", "Imperviousness Change"},
	{"tcd", "Tree Cover Density"},
	{"fty", "Forest Type"},
	{"grl", "Grassland"},
	{"grc", "Grassland Cover"},
	{"grd", "Grassland Density"},
	{"wet", "Wetlands"},
	{"pwb", "Permanent Water Bodies"},
}

var Resolutions = Vocab{
	{"20m", "20 m"},
	{"25m", "25 m"},
	{"100m", "100 m"},
}

var Extents = Vocab{
	{"full", "Full"},
	{"partial", "Partial"},
}

var References = Vocab{
	{"2006", "2006"},
	{"2009", "2009"},
	{"2012", "2012"},
}

const DefaultReference = "2012"

// Products available per lot, shared by country and lot deliveries.
// Stream deliveries use a reduced table.
var lotProducts = map[string][]string{
	"lot1": {"imd", "imc"},
	"lot2": {"tcd", "fty"},
	"lot3": {"grl", "grc", "grd"},
	"lot4": {"wet"},
	"lot5": {"pwb"},
}

var streamLotProducts = map[string][]string{
	"lot1": {"imd"},
	"lot2": {"tcd", "fty"},
	"lot3": {"grl"},
	"lot4": {"wet"},
	"lot5": {"pwb"},
}

// LotProducts returns the product codes a lot may deliver under the
// given delivery type. The returned slice is shared; do not mutate.
func LotProducts(lot string, dt domain.DeliveryType) []string {
	if dt == domain.DeliveryStream {
		return streamLotProducts[lot]
	}
	return lotProducts[lot]
}

// Metadata keys users may set on a delivery form. Everything else in a
// posted form is dropped.
var EditableMetadata = []string{
	"country", "lot", "product", "resolution",
	"extent", "coverage", "reference",
}

// Metadata keys maintained by the workflow itself.
const (
	KeyStage        = "stage"
	KeyDeliveryType = "delivery_type"
	KeyUploadTime   = "upload_time"
	KeyNextParcel   = "next_parcel"
	KeyPrevParcel   = "prev_parcel"
	KeyRejection    = "rejection"
	KeyMerged       = "merged"
	KeyUser         = "user"
)

// Field order for symlink tree paths. Per-delivery-type exclusions are
// applied on top of this list.
var TreeMetadata = []string{
	"country", "lot", "product", "resolution",
	"extent", "coverage", "reference", KeyStage,
}

var CountryExcludeMetadata = []string{"extent", "coverage"}

var StreamExcludeMetadata = []string{
	"country", "resolution", "extent", "coverage", "reference",
}

// SearchMetadata is the whitelist of exact-match query filters.
var SearchMetadata = []string{
	"country", "lot", "product", "resolution",
	"extent", "reference", KeyStage, KeyDeliveryType,
}

// RDFURI maps statement names to the predicate URIs expected by the
// external notification channel.
var RDFURI = map[string]string{
	"rdf_type":     "http://www.w3.org/1999/02/22-rdf-syntax-ns#type",
	"parcel_event": "http://gaur.eea.europa.eu/gioland/static/schema.rdf#ParcelEvent",
	"title":        "http://purl.org/dc/elements/1.1/title",
	"identifier":   "http://purl.org/dc/elements/1.1/identifier",
	"date":         "http://purl.org/dc/elements/1.1/date",
	"actor":        "http://gaur.eea.europa.eu/gioland/static/schema.rdf#actor",
	"actor_name":   "http://gaur.eea.europa.eu/gioland/static/schema.rdf#actor_name",
	"event_type":   "http://gaur.eea.europa.eu/gioland/static/schema.rdf#event_type",
	"decision":     "http://gaur.eea.europa.eu/gioland/static/schema.rdf#decision",
	"locality":     "http://gaur.eea.europa.eu/gioland/static/schema.rdf#locality",
	"lot":          "http://gaur.eea.europa.eu/gioland/static/schema.rdf#lot",
	"stage":        "http://gaur.eea.europa.eu/gioland/static/schema.rdf#stage",
	"product":      "http://gaur.eea.europa.eu/gioland/static/schema.rdf#product",
	"resolution":   "http://gaur.eea.europa.eu/gioland/static/schema.rdf#resolution",
	"extent":       "http://gaur.eea.europa.eu/gioland/static/schema.rdf#extent",
	"reference":    "http://gaur.eea.europa.eu/gioland/static/schema.rdf#reference_year",
}

// Timestamp layouts for user-facing display and notifications.
var DateFormat = map[string]string{
	"long":  "2006-Jan-02 15:04:05",
	"short": "2006-Jan-02",
}

// Report categories and the file extensions accepted for report
// uploads. Stored report files are renamed to
// CDR_<SCOPE>_<CATEGORY>_V<nn><ext>.
var ReportCategories = Vocab{
	{"imp", "Imperviousness"},
	{"for", "Forest"},
	{"grl", "Grassland"},
	{"wet", "Wetlands"},
	{"wat", "Water bodies"},
}

var ReportExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".zip":  true,
}
