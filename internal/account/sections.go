package account

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

// Section maps a path prefix of the web app to the account type expected
// while inside it, plus where to send users who don't have one yet.
type Section struct {
	Prefix     string `yaml:"prefix"`
	Type       string `yaml:"type"`
	Onboarding string `yaml:"onboarding"`

	accountType entity.AccountType
}

// Sections is an immutable prefix table; longest prefix wins.
type Sections struct {
	entries []Section
}

// DefaultSections is used when no ROUTE_SECTIONS_FILE is configured.
func DefaultSections() *Sections {
	s, _ := NewSections([]Section{
		{Prefix: "/artist", Type: "artist", Onboarding: "/create/artist"},
		{Prefix: "/venue", Type: "venue", Onboarding: "/create/venue"},
		{Prefix: "/admin", Type: "admin", Onboarding: "/create/admin"},
	})
	return s
}

func NewSections(in []Section) (*Sections, error) {
	out := make([]Section, 0, len(in))
	for _, s := range in {
		t, ok := entity.ParseAccountType(s.Type)
		if !ok {
			return nil, fmt.Errorf("section %q: %w: %q", s.Prefix, ErrInvalidAccountType, s.Type)
		}
		prefix := "/" + strings.Trim(strings.TrimSpace(s.Prefix), "/")
		if prefix == "/" {
			return nil, fmt.Errorf("section prefix %q matches everything", s.Prefix)
		}
		s.Prefix = prefix
		s.accountType = t
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Prefix) > len(out[j].Prefix) })
	return &Sections{entries: out}, nil
}

// LoadSections reads a YAML file of the form:
//
//	sections:
//	  - prefix: /artist
//	    type: artist
//	    onboarding: /create/artist
func LoadSections(path string) (*Sections, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sections: %w", err)
	}
	var doc struct {
		Sections []Section `yaml:"sections"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse sections: %w", err)
	}
	return NewSections(doc.Sections)
}

// SectionsFromEnv loads ROUTE_SECTIONS_FILE when set, else the defaults.
func SectionsFromEnv() (*Sections, error) {
	if p := strings.TrimSpace(os.Getenv("ROUTE_SECTIONS_FILE")); p != "" {
		return LoadSections(p)
	}
	return DefaultSections(), nil
}

// Match returns the expected account type for path and the section it
// fell in; unmatched paths expect a primary account and return ok=false.
func (s *Sections) Match(path string) (entity.AccountType, Section, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, e := range s.entries {
		if path == e.Prefix || strings.HasPrefix(path, e.Prefix+"/") {
			return e.accountType, e, true
		}
	}
	return entity.TypePrimary, Section{}, false
}
