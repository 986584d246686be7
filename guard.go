package redisconn

// callGuard performs the bounded reconnect-and-retry protocol for one
// method of the capability interface. Guards are created once per method
// name and cached by the owning proxy; recovery always goes through the
// proxy so a retry sees the latest client.
type callGuard struct {
	proxy *Proxy
	name  string
}

// call invokes the method against the proxy's current client. On a
// connectivity failure with attempts remaining it evicts the failed
// client's pool, rebuilds the client through the proxy, and retries the
// same invocation. Any other error, and a connectivity failure on the
// final attempt, is returned to the caller unchanged.
func (g *callGuard) call(invoke func(Conn) (any, error)) (any, error) {
	p := g.proxy

	for attempt := 1; ; attempt++ {
		handle := p.current.Load()

		p.stats.recordAttempt()
		result, err := p.execute(handle.conn, invoke)
		if err == nil {
			p.stats.recordSuccess()
			return result, nil
		}

		if !p.classifier.IsConnectivityError(err) {
			p.stats.recordFailure(err)
			return nil, err
		}

		if attempt == maxCallAttempts {
			p.logger.Warn("recovery exhausted, surfacing connectivity failure",
				"method", g.name,
				"attempts", attempt,
				"error", err)
			p.stats.recordFailure(err)
			return nil, err
		}

		p.logger.Debug("connectivity failure, evicting pool and reconnecting",
			"method", g.name,
			"attempt", attempt,
			"error", err)

		// Evict under the identifier the failed client was built with; the
		// registry treats an already-absent identifier as a no-op.
		p.registry.Evict(handle.identifier)

		if _, cerr := p.createClient(); cerr != nil {
			p.logger.Warn("reconnect failed",
				"method", g.name,
				"attempt", attempt,
				"error", cerr)
			p.stats.recordFailure(cerr)
			return nil, cerr
		}

		p.stats.recordReconnect()
	}
}
