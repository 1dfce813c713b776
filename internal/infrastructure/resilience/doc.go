/*
Package resilience provides per-key circuit breakers.

# Overview

A Breaker stops sending requests to a downstream that keeps failing. A Group
holds one Breaker per key; the HTTP client keys breakers by canonical origin so
one dead host does not slow down requests to the others.

# Usage

	group := resilience.NewGroup(resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		OnStateChange: func(origin string, from, to resilience.State) {
			metrics.BreakerStateChange(origin, to.String())
		},
	})

	err := group.Do("https://data.example.org", func() error {
		return fetch()
	})

# States

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[Trials successes]-> Closed
	                                  ^                     |
	                                  +-----[failure]-------+

While half-open at most Trials requests run at once; extra callers get
ErrTooManyRequests. An open circuit returns ErrCircuitOpen without calling fn.
*/
package resilience
