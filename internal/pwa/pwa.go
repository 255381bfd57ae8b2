// Package pwa holds the manifest model and the per-check verdict types
// produced by the classifier strategies.
package pwa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ManifestIcon is one entry of a manifest's icons array.
type ManifestIcon struct {
	Src     string `json:"src,omitempty"`
	Sizes   string `json:"sizes,omitempty"`
	Type    string `json:"type,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

// Manifest is the subset of the Web App Manifest the heuristics consult.
type Manifest struct {
	Name            string         `json:"name,omitempty"`
	ShortName       string         `json:"short_name,omitempty"`
	Description     string         `json:"description,omitempty"`
	StartURL        string         `json:"start_url,omitempty"`
	Display         string         `json:"display,omitempty"`
	ThemeColor      string         `json:"theme_color,omitempty"`
	BackgroundColor string         `json:"background_color,omitempty"`
	Icons           []ManifestIcon `json:"icons,omitempty"`

	raw json.RawMessage
}

var errManifestNotObject = errors.New("manifest is not a JSON object")

// ParseManifest decodes a manifest document. Anything other than a JSON
// object is rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	trimmed = bytes.TrimPrefix(trimmed, []byte("\xef\xbb\xbf"))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errManifestNotObject
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	m := &Manifest{raw: append(json.RawMessage(nil), trimmed...)}
	m.Name = stringField(fields, "name")
	m.ShortName = stringField(fields, "short_name")
	m.Description = stringField(fields, "description")
	m.StartURL = stringField(fields, "start_url")
	m.Display = stringField(fields, "display")
	m.ThemeColor = stringField(fields, "theme_color")
	m.BackgroundColor = stringField(fields, "background_color")
	m.Icons = iconsField(fields["icons"])
	return m, nil
}

// stringField returns the value when the field is a JSON string and "" for
// any other type.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func iconsField(raw json.RawMessage) []ManifestIcon {
	if len(raw) == 0 {
		return nil
	}
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	icons := make([]ManifestIcon, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		icons = append(icons, ManifestIcon{
			Src:     stringField(entry, "src"),
			Sizes:   stringField(entry, "sizes"),
			Type:    stringField(entry, "type"),
			Purpose: stringField(entry, "purpose"),
		})
	}
	return icons
}

// DisplayName returns name, falling back to short_name.
func (m *Manifest) DisplayName() string {
	if m == nil {
		return ""
	}
	if m.Name != "" {
		return m.Name
	}
	return m.ShortName
}

// MarshalJSON emits the manifest exactly as it was fetched when available.
func (m Manifest) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	type plain Manifest
	out, err := json.Marshal(plain(m))
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return out, nil
}

// CheckResult is the outcome of one heuristic check.
type CheckResult struct {
	Pass     bool      `json:"pass"`
	Detail   string    `json:"detail"`
	Data     *Manifest `json:"data,omitempty"`
	BestIcon string    `json:"bestIcon,omitempty"`
}

// Checks groups the five heuristic checks.
type Checks struct {
	HTTPS         CheckResult `json:"https"`
	Manifest      CheckResult `json:"manifest"`
	ServiceWorker CheckResult `json:"serviceWorker"`
	Icons         CheckResult `json:"icons"`
	Display       CheckResult `json:"display"`
}

// Suggestion is the directory entry proposed for a checked site.
type Suggestion struct {
	Title       string `json:"title"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

// CheckResponse is the full verdict for one URL.
type CheckResponse struct {
	URL        string     `json:"url"`
	IsPwa      bool       `json:"isPwa"`
	Checks     Checks     `json:"checks"`
	Suggestion Suggestion `json:"suggestion"`
	Strategy   string     `json:"strategy,omitempty"`
}
