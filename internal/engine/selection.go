package engine

import (
	"github.com/sujalbistaa/moments/internal/models"
	"github.com/sujalbistaa/moments/internal/persona"
)

// Rand is the randomness the engine draws from. *rand.Rand from math/rand/v2
// satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
	Int64N(n int64) int64
}

// Odds holds the probability of adding a secondary persona, per selection branch.
type Odds struct {
	Mention float64
	ReplyTo float64
	Author  float64
	History float64
	Random  float64
}

// Reason names the branch that picked the primary persona.
type Reason string

const (
	ReasonMention Reason = "mention"
	ReasonReplyTo Reason = "reply_to"
	ReasonAuthor  Reason = "author"
	ReasonHistory Reason = "history"
	ReasonRandom  Reason = "random"
)

// Trigger is what a reaction responds to.
type Trigger struct {
	Text     string
	ReplyTo  string
	AuthorID string // author of the post
	// History holds the comments that precede the trigger, oldest first.
	History []models.Comment
}

// Select picks the personas that react to t. The primary persona comes from
// the first matching branch; a secondary persona may follow with that
// branch's probability, drawn from the remaining personas.
func Select(roster *persona.Roster, t Trigger, odds Odds, r Rand) ([]persona.Persona, Reason) {
	primary, reason := primaryPersona(roster, t, r)

	var p float64
	switch reason {
	case ReasonMention:
		p = odds.Mention
	case ReasonReplyTo:
		p = odds.ReplyTo
	case ReasonAuthor:
		p = odds.Author
	case ReasonHistory:
		p = odds.History
	default:
		p = odds.Random
	}

	selected := []persona.Persona{primary}
	others := roster.Others(primary.ID)
	if len(others) > 0 && r.Float64() < p {
		selected = append(selected, others[r.IntN(len(others))])
	}
	return selected, reason
}

func primaryPersona(roster *persona.Roster, t Trigger, r Rand) (persona.Persona, Reason) {
	if p, ok := roster.Mentioned(t.Text); ok {
		return p, ReasonMention
	}
	if t.ReplyTo != "" {
		if p, ok := roster.ByName(t.ReplyTo); ok {
			return p, ReasonReplyTo
		}
	}
	if p, ok := roster.ByID(t.AuthorID); ok {
		return p, ReasonAuthor
	}
	for i := len(t.History) - 1; i >= 0; i-- {
		if p, ok := roster.ByID(t.History[i].AuthorID); ok {
			return p, ReasonHistory
		}
	}
	all := roster.All()
	return all[r.IntN(len(all))], ReasonRandom
}
