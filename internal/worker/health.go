package worker

import "context"

// readier is implemented by runners backed by a remote service, such as the
// compute dispatcher.
type readier interface {
	Ready(ctx context.Context) error
}

// Check pings the broker and, when the runner can report it, the runner's
// backend. It satisfies the API's readiness checker.
func (p *Pool) Check(ctx context.Context) (map[string]string, bool) {
	checks := map[string]func(context.Context) error{
		"broker": p.broker.Ping,
	}
	if r, ok := p.runner.(readier); ok {
		checks["compute"] = r.Ready
	}

	out := make(map[string]string, len(checks))
	healthy := true
	for name, ping := range checks {
		if err := ping(ctx); err != nil {
			out[name] = "error: " + err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	return out, healthy
}
