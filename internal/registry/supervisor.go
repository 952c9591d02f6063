package registry

import (
	"context"
	"strings"
	"time"
)

// startConnect launches the lifecycle task for one connect attempt:
// transition to connecting, dial, then supervise the live session until
// it dies or is torn down. Callers must have torn down any previous
// task for this state first.
func (r *Registry) startConnect(st *serverState) {
	ctx, cancel := context.WithCancel(r.baseCtx)
	done := make(chan struct{})

	st.mu.Lock()
	st.lifecycleCtx = ctx
	st.lifecycleCancel = cancel
	st.lifecycleDone = done
	st.mu.Unlock()

	go func() {
		defer close(done)
		r.setStatus(st, StatusConnecting, "")
		if err := r.connectOnce(ctx, st); err != nil {
			return
		}
		r.supervise(ctx, st)
	}()
}

// connectOnce performs one connect attempt: optional auth probe, dial,
// capability listing. On success the state is connected with its raw
// tool list populated and the retry counter reset. On failure the state
// carries the diagnostic and the returned error describes it.
func (r *Registry) connectOnce(ctx context.Context, st *serverState) error {
	st.mu.Lock()
	key := st.key
	cfg := st.config
	st.mu.Unlock()

	hadCredential := true
	if cfg.Kind == KindStreamableHTTP && r.auth != nil {
		hadCredential = r.auth.HasValidCredential(ctx, key.Server, key.Toolset)
		if !hadCredential {
			if err := r.probeAuth(ctx, st, key, cfg.URL); err != nil {
				return err
			}
		}
	}

	// Soft timeout: warn when the attempt runs long, but let it keep
	// going; it will still resolve the state machine when it finishes.
	timeout := r.opts.connectTimeout(cfg.Kind)
	timer := time.AfterFunc(timeout, func() {
		r.log.Warn("connect attempt exceeded timeout, still waiting",
			"server", key.String(),
			"timeout", timeout.String(),
		)
	})
	session, ring, err := r.dialer(ctx, key, cfg)
	timer.Stop()

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Auth may have become required between probe and connect;
		// re-probe once before surfacing a hard error.
		if cfg.Kind == KindStreamableHTTP && r.auth != nil && !hadCredential && looksLikeAuthFailure(err.Error()) {
			if probeErr := r.probeAuth(ctx, st, key, cfg.URL); probeErr != nil {
				return probeErr
			}
		}

		diag := err.Error()
		if ring != nil {
			if tail := ring.Tail(); tail != "" {
				diag = tail
			}
		}
		r.setStatus(st, StatusError, diag)
		return &ConnectionError{Key: key, Diagnostic: diag, Err: err}
	}

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		diag := "listing tools failed: " + err.Error()
		if ring != nil {
			if tail := ring.Tail(); tail != "" {
				diag = tail
			}
		}
		r.setStatus(st, StatusError, diag)
		return &ConnectionError{Key: key, Diagnostic: diag, Err: err}
	}

	st.mu.Lock()
	st.session = session
	st.stderr = ring
	st.rawTools = tools.Tools
	st.retryCount = 0
	st.mu.Unlock()

	r.setStatus(st, StatusConnected, "")
	r.log.Info("server connected", "server", key.String(), "tools", len(tools.Tools))
	return nil
}

// probeAuth checks whether the endpoint demands OAuth. On a confirmed
// challenge the server transitions to requires_auth and no connect
// attempt is made; it stays there until a manual reconnect after the
// caller completes an OAuth flow.
func (r *Registry) probeAuth(ctx context.Context, st *serverState, key ServerKey, url string) error {
	res, err := r.auth.Probe(ctx, url)
	if err != nil {
		r.log.Warn("auth probe failed, attempting connect anyway", "server", key.String(), "error", err)
		return nil
	}
	if !res.RequiresAuth {
		return nil
	}

	r.setStatus(st, StatusRequiresAuth, "authorization required")
	r.log.Info("server requires authorization",
		"server", key.String(),
		"resource_metadata", res.ResourceMetadataURL,
	)
	return &AuthRequiredError{Key: key, ResourceMetadataURL: res.ResourceMetadataURL}
}

// supervise watches a connected session: periodic pings bounded by a
// short timeout, plus the session's own closure signal. On failure the
// server transitions to error and the reconnect scheduler takes over.
// Returns when the lifecycle context is cancelled, the status changes
// externally, or the session dies.
func (r *Registry) supervise(ctx context.Context, st *serverState) {
	session := st.snapshotSession()
	if session == nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		session.Wait()
		close(closed)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			r.failConnected(st, "connection closed by server")
			return
		case <-time.After(r.opts.PingInterval):
		}

		if st.snapshotStatus() != StatusConnected {
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx, r.opts.PingTimeout)
		err := session.Ping(pingCtx, nil)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.failConnected(st, "liveness probe failed: "+err.Error())
			return
		}
	}
}

// failConnected transitions a connected server to error, closes its
// session, and starts the reconnect scheduler. No-op unless currently
// connected, so a concurrent manual disconnect wins.
func (r *Registry) failConnected(st *serverState, reason string) {
	st.mu.Lock()
	if st.status != StatusConnected {
		st.mu.Unlock()
		return
	}
	session := st.session
	st.session = nil
	if st.stderr != nil {
		if tail := st.stderr.Tail(); tail != "" {
			reason = tail
		}
	}
	parent := st.lifecycleCtx
	st.mu.Unlock()

	if session != nil {
		_ = session.Close()
	}
	r.setStatus(st, StatusError, reason)
	r.log.Warn("server lost", "server", st.key.String(), "error", reason)
	r.startReconnect(st, parent)
}

// startReconnect launches (or restarts) the retry task for a server
// that just entered error from connected. The task walks the escalating
// delay schedule, attempting a reconnect after each delay, until the
// server is connected or disconnected or the schedule is exhausted —
// then it gives up silently, leaving the status at error.
//
// The task's context derives from the lifecycle context so a teardown
// cancels pending retries even when it races with this call.
func (r *Registry) startReconnect(st *serverState, parent context.Context) {
	if parent == nil {
		parent = r.baseCtx
	}
	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	st.mu.Lock()
	prevCancel, prevDone := st.reconnectCancel, st.reconnectDone
	st.reconnectCancel = cancel
	st.reconnectDone = done
	st.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevDone != nil {
		<-prevDone
	}

	go func() {
		defer close(done)
		for {
			st.mu.Lock()
			attempt := st.retryCount
			st.mu.Unlock()

			if attempt >= len(r.opts.RetrySchedule) {
				r.log.Warn("reconnect schedule exhausted",
					"server", st.key.String(),
					"attempts", attempt,
				)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(r.opts.RetrySchedule[attempt]):
			}

			st.mu.Lock()
			if st.status != StatusError {
				st.mu.Unlock()
				return
			}
			st.retryCount++
			st.mu.Unlock()

			r.log.Info("attempting reconnect",
				"server", st.key.String(),
				"attempt", attempt+1,
			)

			r.setStatus(st, StatusConnecting, "")
			if err := r.connectOnce(ctx, st); err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			// Connected again: hand the session to a fresh
			// supervision task and stop retrying.
			r.startSupervise(st)
			return
		}
	}()
}

// startSupervise launches a lifecycle task that only supervises an
// already-established session (used after a successful auto-reconnect).
func (r *Registry) startSupervise(st *serverState) {
	ctx, cancel := context.WithCancel(r.baseCtx)
	done := make(chan struct{})

	st.mu.Lock()
	st.lifecycleCtx = ctx
	st.lifecycleCancel = cancel
	st.lifecycleDone = done
	st.mu.Unlock()

	go func() {
		defer close(done)
		r.supervise(ctx, st)
	}()
}

// looksLikeAuthFailure reports whether a connect error text suggests an
// authorization rejection.
func looksLikeAuthFailure(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "401") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "authentication")
}

// looksLikeConnectionLost reports whether an invocation error text
// indicates the underlying session dropped.
func looksLikeConnectionLost(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection") || strings.Contains(lower, "closed")
}
