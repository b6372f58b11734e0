package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moments_persona_reactions_total",
		Help: "Persona reactions applied to the feed, by action.",
	}, []string{"action"})

	fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moments_reply_fallbacks_total",
		Help: "Persona comments that used a canned phrase after the generator failed.",
	})

	abortedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moments_reactions_aborted_total",
		Help: "Scheduled reactions dropped because their post or comment was deleted.",
	})
)
