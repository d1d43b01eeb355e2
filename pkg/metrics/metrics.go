package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_redemptions_total",
		Help: "Code redemption attempts by pool and outcome.",
	}, []string{"pool", "outcome"})

	GiveawayRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "economy_giveaway_runs_total",
		Help: "Completed credit distribution runs.",
	})

	GiveawayCreditsDistributed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "economy_giveaway_credits_distributed_total",
		Help: "Total credits handed out by distribution runs.",
	})

	CreditsSpentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "economy_credits_spent_total",
		Help: "Total credits consumed by guarded spends.",
	})
)
