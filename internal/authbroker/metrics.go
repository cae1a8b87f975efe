package authbroker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokenExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetgate_token_exchanges_total",
		Help: "STS token exchanges by organization and outcome.",
	}, []string{"organization", "outcome"})

	tokenCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetgate_token_cache_hits_total",
		Help: "Broker requests served from the in-memory token cache.",
	}, []string{"organization"})
)
