// Package persona holds the fixed set of simulated feed participants.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/sujalbistaa/moments/internal/models"
)

// Personality is the voice tag used to pick canned replies.
type Personality string

const (
	Cheerful  Personality = "cheerful"
	Calm      Personality = "calm"
	Confident Personality = "confident"
)

var knownPersonalities = []Personality{Cheerful, Calm, Confident}

var ErrInvalidRoster = errors.New("invalid persona roster")

//go:embed personas.yaml
var defaultRoster []byte

// Persona is a simulated, non-human feed participant.
type Persona struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	Personality  Personality `yaml:"personality"`
	Avatar       string      `yaml:"avatar"`
	SystemPrompt string      `yaml:"systemPrompt"`
	Seed         *SeedPost   `yaml:"seed,omitempty"`
}

// SeedPost is a post the persona publishes when the feed starts empty.
type SeedPost struct {
	Content string        `yaml:"content"`
	Images  []string      `yaml:"images"`
	Age     time.Duration `yaml:"age"`
}

// Author returns the persona as a feed author.
func (p Persona) Author() models.Author {
	return models.Author{ID: p.ID, Name: p.Name, Avatar: p.Avatar}
}

// Roster is the process-wide, read-only persona configuration.
type Roster struct {
	personas []Persona
	byID     map[string]Persona
	replies  map[Personality][]string
}

type rosterFile struct {
	Personas []Persona               `yaml:"personas"`
	Replies  map[Personality][]string `yaml:"replies"`
}

// Load reads a roster from path, or the embedded default when path is empty.
func Load(path string) (*Roster, error) {
	if path == "" {
		return Parse(defaultRoster)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas file: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded roster.
func Default() *Roster {
	return lo.Must(Parse(defaultRoster))
}

// Parse decodes and validates a YAML roster.
func Parse(data []byte) (*Roster, error) {
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoster, err)
	}
	if len(f.Personas) == 0 {
		return nil, fmt.Errorf("%w: no personas", ErrInvalidRoster)
	}

	byID := lo.KeyBy(f.Personas, func(p Persona) string { return p.ID })
	if len(byID) != len(f.Personas) {
		return nil, fmt.Errorf("%w: duplicate persona id", ErrInvalidRoster)
	}
	if len(lo.Uniq(lo.Map(f.Personas, func(p Persona, _ int) string { return p.Name }))) != len(f.Personas) {
		return nil, fmt.Errorf("%w: duplicate persona name", ErrInvalidRoster)
	}
	for _, p := range f.Personas {
		if p.ID == "" || strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("%w: persona needs an id and a name", ErrInvalidRoster)
		}
		if !lo.Contains(knownPersonalities, p.Personality) {
			return nil, fmt.Errorf("%w: persona %s has unknown personality %q", ErrInvalidRoster, p.ID, p.Personality)
		}
	}
	if len(f.Replies[Cheerful]) == 0 {
		return nil, fmt.Errorf("%w: replies for %s are required", ErrInvalidRoster, Cheerful)
	}

	return &Roster{
		personas: f.Personas,
		byID:     byID,
		replies:  f.Replies,
	}, nil
}

// All returns the personas in roster order.
func (r *Roster) All() []Persona {
	return append([]Persona{}, r.personas...)
}

// ByID looks a persona up by id.
func (r *Roster) ByID(id string) (Persona, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// ByName looks a persona up by display name.
func (r *Roster) ByName(name string) (Persona, bool) {
	return lo.Find(r.personas, func(p Persona) bool { return p.Name == name })
}

// IsPersona reports whether id belongs to a persona.
func (r *Roster) IsPersona(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Mentioned returns the first persona, in roster order, whose display name
// appears in text.
func (r *Roster) Mentioned(text string) (Persona, bool) {
	if text == "" {
		return Persona{}, false
	}
	return lo.Find(r.personas, func(p Persona) bool { return strings.Contains(text, p.Name) })
}

// Others returns every persona except the one with excludeID.
func (r *Roster) Others(excludeID string) []Persona {
	return lo.Filter(r.personas, func(p Persona, _ int) bool { return p.ID != excludeID })
}

// Replies returns the canned phrases for a personality, falling back to the
// cheerful set.
func (r *Roster) Replies(p Personality) []string {
	if replies := r.replies[p]; len(replies) > 0 {
		return replies
	}
	return r.replies[Cheerful]
}
