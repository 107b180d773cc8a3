package core

import (
	"fmt"
	"strings"
)

// ModelID identifies a model, optionally qualified by its provider. The
// display form is "provider/name", or just "name" when unqualified.
type ModelID struct {
	Provider string
	Name     string
}

// ParseModelID parses a "provider/name" or bare "name" identifier. Only
// the first slash separates provider from name, so model names may
// themselves contain slashes.
func ParseModelID(s string) (ModelID, error) {
	if s == "" {
		return ModelID{}, NewError(KindConfiguration, CodeInvalidFormat, "empty model identifier")
	}
	provider, name, found := strings.Cut(s, "/")
	if !found {
		return ModelID{Name: s}, nil
	}
	if provider == "" || name == "" {
		return ModelID{}, NewError(KindConfiguration, CodeInvalidFormat,
			fmt.Sprintf("malformed model identifier %q", s))
	}
	return ModelID{Provider: provider, Name: name}, nil
}

// String returns the display form. It round-trips through ParseModelID.
func (m ModelID) String() string {
	if m.Provider == "" {
		return m.Name
	}
	return m.Provider + "/" + m.Name
}

// Qualified reports whether the identifier names its provider.
func (m ModelID) Qualified() bool {
	return m.Provider != ""
}
