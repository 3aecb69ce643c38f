/*
Package resilience provides a circuit breaker for notifier restarts.

# Overview

The supervisor restarts a notifier that reports a transport failure. A
native engine that cannot reach its socket would otherwise be restarted on
every supervision tick; the breaker stops those attempts after repeated
failures and probes again once the cooldown has passed.

# Usage

	breaker := resilience.New("notifier", resilience.Settings{
		Cooldown: time.Minute,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	err := breaker.Do(func() error {
		return restart()
	})

# States

	Closed --[trip]-> Open --[cooldown]-> Half-Open --[probe ok]-> Closed
	                                          |
	                                    [probe failed]
	                                          v
	                                         Open
*/
package resilience
