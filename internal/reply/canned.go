package reply

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/sujalbistaa/moments/internal/persona"
)

// Canned picks a stock phrase for the persona's personality. It never fails.
type Canned struct {
	roster *persona.Roster

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewCanned returns a canned generator. A nil rnd uses the global source.
func NewCanned(roster *persona.Roster, rnd *rand.Rand) *Canned {
	return &Canned{roster: roster, rnd: rnd}
}

func (c *Canned) Generate(_ context.Context, p Prompt) (string, error) {
	return c.Pick(p.Persona.Personality), nil
}

// Pick returns a random phrase for the personality.
func (c *Canned) Pick(personality persona.Personality) string {
	replies := c.roster.Replies(personality)
	if c.rnd == nil {
		return replies[rand.IntN(len(replies))]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return replies[c.rnd.IntN(len(replies))]
}
