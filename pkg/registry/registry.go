package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"finserv-applications/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// LoadRegistry reads and validates a JSON registry file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if err := reg.init(); err != nil {
		return nil, fmt.Errorf("invalid registry %s: %w", path, err)
	}
	return &reg, nil
}

// New builds a validated registry from entries.
func New(version string, entries ...Entry) (*Registry, error) {
	reg := &Registry{Version: version, Entries: entries}
	if err := reg.init(); err != nil {
		return nil, err
	}
	return reg, nil
}

// MustNew panics on invalid entries; meant for static tables and tests.
func MustNew(version string, entries ...Entry) *Registry {
	reg, err := New(version, entries...)
	if err != nil {
		panic(err)
	}
	return reg
}

func (r *Registry) init() error {
	if len(r.Entries) == 0 {
		return fmt.Errorf("registry has no entries")
	}
	r.index = make(map[models.ServiceCategory]int, len(r.Entries))
	collections := make(map[string]models.ServiceCategory, len(r.Entries))

	for i := range r.Entries {
		e := &r.Entries[i]
		if e.StatusField == "" {
			e.StatusField = DefaultStatusField
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if _, dup := r.index[e.Category]; dup {
			return fmt.Errorf("duplicate category %q", e.Category)
		}
		if other, dup := collections[e.Collection]; dup {
			return fmt.Errorf("collection %q shared by %q and %q", e.Collection, other, e.Category)
		}
		r.index[e.Category] = i
		collections[e.Collection] = e.Category
	}
	return nil
}

// Validate checks an entry in isolation.
func (e Entry) Validate() error {
	if e.Category == "" {
		return fmt.Errorf("category is required")
	}
	if !identifierPattern.MatchString(string(e.Category)) {
		return fmt.Errorf("category %q must be a lowercase identifier", e.Category)
	}
	if !identifierPattern.MatchString(e.Collection) {
		return fmt.Errorf("collection %q for %q must be a lowercase identifier", e.Collection, e.Category)
	}
	if e.AmountField != "" && !identifierPattern.MatchString(e.AmountField) {
		return fmt.Errorf("amountField %q for %q must be a lowercase identifier", e.AmountField, e.Category)
	}
	if e.StatusField != "" && !identifierPattern.MatchString(e.StatusField) {
		return fmt.Errorf("statusField %q for %q must be a lowercase identifier", e.StatusField, e.Category)
	}
	return nil
}

// Lookup returns the entry for a category.
func (r *Registry) Lookup(category models.ServiceCategory) (Entry, bool) {
	i, ok := r.index[category]
	if !ok {
		return Entry{}, false
	}
	return r.Entries[i], true
}

// All returns a copy of the entries in registry order.
func (r *Registry) All() []Entry {
	out := make([]Entry, len(r.Entries))
	copy(out, r.Entries)
	return out
}

func (r *Registry) Len() int {
	return len(r.Entries)
}
