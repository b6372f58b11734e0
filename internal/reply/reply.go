// Package reply generates persona comment text.
package reply

import (
	"context"
	"errors"

	"github.com/sujalbistaa/moments/internal/persona"
)

// ErrUpstream reports a failed text-generation call.
var ErrUpstream = errors.New("reply generation failed")

// MaxHistory is the largest number of recent comments passed as conversation history.
const MaxHistory = 10

// Message is one entry of the conversation history.
type Message struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Prompt is everything a generator may use to produce a reply.
type Prompt struct {
	Persona    persona.Persona
	PostBody   string
	Text       string // the post or comment being answered
	ImageHints []string
	History    []Message
}

// A Generator produces a short reply in a persona's voice.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}
