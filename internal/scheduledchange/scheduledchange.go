// Package scheduledchange holds the wire types the admin service returns for
// v1 scheduled changes and v2 releases.
package scheduledchange

import "strconv"

// ChangeType enumerates the v2 scheduled-change operations.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Class identifies a v1 endpoint the admin service exposes scheduled changes
// under. The two required-signoffs classes are kept distinct rather than
// collapsed, since the agent's ordering and endpoint routing depend on it.
type Class string

const (
	ClassRequiredSignoffsProduct     Class = "required_signoffs/product"
	ClassRequiredSignoffsPermissions Class = "required_signoffs/permissions"
	ClassPermissions                 Class = "permissions"
	ClassRules                       Class = "rules"
	ClassReleases                    Class = "releases"
	ClassPinnableReleases            Class = "pinnable_releases"
	ClassEmergencyShutoff            Class = "emergency_shutoff"
)

// Endpoint returns the GET path that fetches this class's scheduled changes.
func (c Class) Endpoint() string {
	return "/scheduled_changes/" + string(c)
}

// V1Classes is the fixed cross-class dispatch order: sign-off and
// permissions policy before rules, rules before releases and pinnable
// releases, shutoffs last.
var V1Classes = []Class{
	ClassRequiredSignoffsProduct,
	ClassRequiredSignoffsPermissions,
	ClassPermissions,
	ClassRules,
	ClassReleases,
	ClassPinnableReleases,
	ClassEmergencyShutoff,
}

// ScheduledChange is a v1 scheduled change as returned by
// /scheduled_changes/<class>.
type ScheduledChange struct {
	SCID             int64             `json:"sc_id"`
	When             *int64            `json:"when"`
	TelemetryUptake  *float64          `json:"telemetry_uptake"`
	TelemetryProduct *string           `json:"telemetry_product"`
	TelemetryChannel *string           `json:"telemetry_channel"`
	Signoffs         map[string]string `json:"signoffs"`
	RequiredSignoffs map[string]int    `json:"required_signoffs"`
	// Priority is populated only for the rules class; absent sorts last.
	Priority *int `json:"priority,omitempty"`
}

// EndpointFor returns the v1 enact path for this scheduled change under cls.
func (sc ScheduledChange) EndpointFor(cls Class) string {
	return cls.Endpoint() + "/" + strconv.FormatInt(sc.SCID, 10) + "/enact"
}

func (sc ScheduledChange) TimeWhen() *int64 { return sc.When }

func (sc ScheduledChange) Telemetry() (*float64, *string, *string) {
	return sc.TelemetryUptake, sc.TelemetryProduct, sc.TelemetryChannel
}

func (sc ScheduledChange) SignoffState() (map[string]int, map[string]string) {
	return sc.RequiredSignoffs, sc.Signoffs
}

// Inventory is the body of a v1 class GET.
type Inventory struct {
	Count            int               `json:"count"`
	ScheduledChanges []ScheduledChange `json:"scheduled_changes"`
}

// ReleaseChange is a v2 scheduled change, nested under a Release.
type ReleaseChange struct {
	ScheduledChange
	// Path selects into the release structure; empty on the whole-release
	// "root" change.
	Path       string     `json:"path,omitempty"`
	ChangeType ChangeType `json:"change_type,omitempty"`
}

// Release is a v2 scheduled-change group; all of its ScheduledChanges enact
// atomically through one aggregate endpoint.
type Release struct {
	Name                    string                 `json:"name"`
	Product                 string                 `json:"product"`
	DataVersion             int                    `json:"data_version"`
	ReadOnly                bool                   `json:"read_only"`
	RuleInfo                map[string]interface{} `json:"rule_info,omitempty"`
	ScheduledChanges        []ReleaseChange        `json:"scheduled_changes"`
	ProductRequiredSignoffs map[string]int         `json:"product_required_signoffs,omitempty"`
	RequiredSignoffs        map[string]int         `json:"required_signoffs,omitempty"`
}

// EnactEndpoint returns the aggregate enact path for this release.
func (r Release) EnactEndpoint() string {
	return "/v2/releases/" + r.Name + "/enact"
}

// RequiredSignoffSets returns the two independent required-signoff maps a
// v2 release carries. Unlike v1, where required_signoffs/product and
// required_signoffs/permissions are separate classes with their own SCs,
// a v2 release folds both policies onto itself: an SC belonging to the
// release must satisfy both sets of requirements, mirroring how the two
// v1 classes gate independently.
func (r Release) RequiredSignoffSets() (permissions, product map[string]int) {
	return r.RequiredSignoffs, r.ProductRequiredSignoffs
}

// ReleaseInventory is the body of the v2 /v2/releases GET.
type ReleaseInventory struct {
	Releases []Release `json:"releases"`
}
