package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ContentType describes how a payload is installed.
type ContentType string

const (
	// ContentUnspecified lets the local component configuration decide.
	ContentUnspecified ContentType = ""
	// ContentFile is a single file renamed into place.
	ContentFile ContentType = "file"
	// ContentArchive is a zip or tar.gz extracted into a directory.
	ContentArchive ContentType = "archive"
)

// ParseContentType parses "file" or "archive". Empty is ContentUnspecified.
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ContentUnspecified, nil
	case "file", "single_file":
		return ContentFile, nil
	case "archive", "zip":
		return ContentArchive, nil
	default:
		return ContentUnspecified, fmt.Errorf("unknown content type %q", s)
	}
}

// Manifest key suffixes. These names are a contract with the manifest
// publisher and must stay stable.
const (
	suffixVersion = "_version"
	suffixURL     = "_url"
	suffixHash    = "_hash"
	suffixType    = "_type"
)

// Entry describes the published state of one component.
type Entry struct {
	Component string
	Version   string
	URL       string
	Hash      string // hex SHA-256, may be empty
	Type      ContentType
}

// Manifest is the remote version descriptor, fetched fresh on every pass.
type Manifest struct {
	entries map[string]Entry
	// invalid holds components whose keys are declared but malformed.
	invalid map[string]error
	// Raw is the exact body, kept for signature verification.
	Raw []byte
}

// Entry returns the published entry for a component.
func (m *Manifest) Entry(component string) (Entry, bool) {
	e, ok := m.entries[component]
	return e, ok
}

// Invalid returns why a declared component's entry could not be parsed, or
// nil if the entry is well formed or absent.
func (m *Manifest) Invalid(component string) error {
	return m.invalid[component]
}

// Components returns the published component names in sorted order.
func (m *Manifest) Components() []string {
	return sortedNames(m.entries)
}

// InvalidComponents returns the names of malformed entries in sorted order.
func (m *Manifest) InvalidComponents() []string {
	return sortedNames(m.invalid)
}

func sortedNames[V any](set map[string]V) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseManifest decodes a manifest body.
//
// The body is a flat JSON object. Every "<component>_version" key declares a
// component and requires a matching "<component>_url"; "<component>_hash" and
// "<component>_type" are optional. Other keys are ignored. A malformed entry
// does not fail the manifest: it is reported by Invalid, so a bad entry for a
// component this launcher does not track cannot block the others.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("manifest is not a JSON object")
	}

	m := &Manifest{entries: map[string]Entry{}, invalid: map[string]error{}, Raw: data}
	for key := range raw {
		name, ok := strings.CutSuffix(key, suffixVersion)
		if !ok || name == "" {
			continue
		}
		entry, err := parseEntry(raw, name)
		if err != nil {
			m.invalid[name] = err
			continue
		}
		m.entries[name] = entry
	}

	if len(m.entries)+len(m.invalid) == 0 {
		return nil, fmt.Errorf("manifest declares no components")
	}

	return m, nil
}

func parseEntry(raw map[string]interface{}, name string) (Entry, error) {
	key := name + suffixVersion
	version, err := scalarString(raw[key])
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", key, err)
	}
	if version == "" {
		return Entry{}, fmt.Errorf("%s: empty version", key)
	}

	url, err := optionalString(raw, name+suffixURL)
	if err != nil {
		return Entry{}, err
	}
	if url == "" {
		return Entry{}, fmt.Errorf("%s%s: missing download url", name, suffixURL)
	}

	hash, err := optionalString(raw, name+suffixHash)
	if err != nil {
		return Entry{}, err
	}

	typeName, err := optionalString(raw, name+suffixType)
	if err != nil {
		return Entry{}, err
	}
	ct, err := ParseContentType(typeName)
	if err != nil {
		return Entry{}, fmt.Errorf("%s%s: %w", name, suffixType, err)
	}

	return Entry{
		Component: name,
		Version:   version,
		URL:       url,
		Hash:      strings.TrimSpace(hash),
		Type:      ct,
	}, nil
}

// scalarString accepts JSON strings and numbers; publishers sometimes write
// versions as bare numbers.
func scalarString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func optionalString(raw map[string]interface{}, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, err := scalarString(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return s, nil
}
