// Package registry loads the per-endpoint JSON configuration documents
// described in spec.md §6: one file per known endpoint name, under a
// configured registry directory, first checked in the "standard" family then
// the "exir" family. Grounded in internal/catalog/catalog.go's plain
// os.ReadFile load; the package has no save operation.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sarkhati/dispatcher/internal/calibration"
)

// Family distinguishes the two endpoint families recognized by the core.
// For exir, the family selects whether the raw nt header (probes) and the
// dynamic X-App-N signature (orders) are attached; the authentication header
// is chosen from the document's cookie/authorization fields, not the family.
type Family string

const (
	FamilyStandard Family = "standard"
	FamilyExir     Family = "exir"
)

// DelayModel selects how a calibration estimate is converted into a send
// advance.
type DelayModel string

const (
	DelayModelRTT     DelayModel = "RTT"
	DelayModelHalfRTT DelayModel = "HALF_RTT"
)

// Document is the on-disk shape of one endpoint's registry entry, unmarshaled
// directly from its JSON file.
type Document struct {
	Cookie        string               `json:"cookie,omitempty"`
	Authorization string               `json:"authorization,omitempty"`
	// Nt is the exir family's per-broker signature secret, consumed by
	// internal/signature to derive X-App-N. Unused by the standard family.
	Nt            string               `json:"nt,omitempty"`
	UserAgent     string               `json:"user_agent"`
	OrderURL      string               `json:"order_url"`
	Orders        []json.RawMessage    `json:"orders"`
	BatchDelayMs  int64                `json:"batch_delay_ms"`
	BatchRepeat   int                  `json:"batch_repeat"`
	TargetTime    string               `json:"target_time,omitempty"`
	Calibration   *calibration.Profile `json:"calibration,omitempty"`
	DelayModel    DelayModel           `json:"delay_model,omitempty"`
}

// placeholderAuth values are treated as "not actually configured" so a
// freshly scaffolded registry file fails fast instead of dispatching with a
// dummy credential.
var placeholderAuth = map[string]bool{
	"":                true,
	"CHANGEME":        true,
	"REPLACE_ME":      true,
	"<cookie>":        true,
	"<authorization>": true,
}

// Validate checks the configuration-kind invariants from spec.md §7: these
// must be caught before any I/O, not discovered mid-dispatch. A BatchRepeat
// of 0 passes (Load defaults it to 1 first); only a negative value fails.
func (d *Document) Validate() error {
	if placeholderAuth[d.Cookie] && placeholderAuth[d.Authorization] {
		return fmt.Errorf("registry: at least one of cookie or authorization must be set")
	}
	if d.OrderURL == "" {
		return fmt.Errorf("registry: order_url is required")
	}
	if len(d.Orders) == 0 {
		return fmt.Errorf("registry: orders must be non-empty")
	}
	if d.BatchRepeat != 0 && d.BatchRepeat < 1 {
		return fmt.Errorf("registry: batch_repeat must be >= 1, got %d", d.BatchRepeat)
	}
	return nil
}

// WithDefaults returns a copy of d with spec.md §6 defaults applied.
func (d Document) WithDefaults() Document {
	out := d
	if out.BatchDelayMs == 0 {
		out.BatchDelayMs = 100
	}
	if out.BatchRepeat == 0 {
		out.BatchRepeat = 1
	}
	if out.DelayModel == "" {
		out.DelayModel = DelayModelRTT
	}
	if out.Calibration == nil {
		defaults := calibration.Profile{Enabled: true}.WithDefaults()
		out.Calibration = &defaults
	} else {
		withDefaults := out.Calibration.WithDefaults()
		out.Calibration = &withDefaults
	}
	return out
}

// Load resolves name against dir, first as dir/standard/<name>.json then as
// dir/exir/<name>.json, and returns the parsed, defaulted document along
// with the family it was found under.
func Load(dir, name string) (Document, Family, error) {
	for _, fam := range []Family{FamilyStandard, FamilyExir} {
		path := filepath.Join(dir, string(fam), name+".json")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Document{}, "", fmt.Errorf("registry: read %s: %w", path, err)
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, "", fmt.Errorf("registry: parse %s: %w", path, err)
		}
		doc = doc.WithDefaults()
		if err := doc.Validate(); err != nil {
			return Document{}, "", fmt.Errorf("registry: %s: %w", path, err)
		}
		return doc, fam, nil
	}
	return Document{}, "", fmt.Errorf("registry: no entry named %q under %s/{standard,exir}", name, dir)
}

// Names lists every endpoint name configured under dir, across both
// families, for the "all" pseudo-endpoint fan-out (spec.md §2/§5's
// multi-task-across-endpoints mode). An entry present in both families is
// listed once, resolving to the standard family, matching Load's own lookup
// order.
func Names(dir string) ([]string, error) {
	seen := map[string]bool{}
	var names []string
	for _, fam := range []Family{FamilyStandard, FamilyExir} {
		pattern := filepath.Join(dir, string(fam), "*.json")
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("registry: list %s: %w", pattern, err)
		}
		for _, m := range matches {
			name := strings.TrimSuffix(filepath.Base(m), ".json")
			if seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

