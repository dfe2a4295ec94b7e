package turns

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_actions_accepted_total",
		Help: "Actions stored as the first write for their turn",
	})

	actionsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_actions_duplicate_total",
		Help: "Action submissions that lost the first-write-wins race",
	})

	actionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_actions_rejected_total",
		Help: "Actions normalized to NoAction, by reject reason",
	}, []string{"reason"})

	turnsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_turns_resolved_total",
		Help: "Turn resolutions committed",
	})

	battlesEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_battles_ended_total",
		Help: "Battles ended, by reason",
	}, []string{"reason"})

	resolveRaces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_resolve_races_total",
		Help: "ResolveTurn invocations that lost a CAS race",
	})
)
