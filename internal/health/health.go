// Package health is a supplemented feature (not named in spec.md):
// a readiness/liveness surface an embedding process can poll to decide
// whether this module's long-lived pieces (the chain state manager's
// apply/unwind loop) are alive and making progress. It does not affect
// consensus semantics. Grounded on the teacher's util/health package:
// a slice of named Checks aggregated into one overall status.
package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Check is one named liveness/readiness probe. checkLiveness
// distinguishes a liveness probe (is the process alive) from a
// readiness probe (is it caught up and safe to route work to).
type Check struct {
	Name  string
	Check func(ctx context.Context, checkLiveness bool) (int, string, error)
}

// CheckAll runs every check and folds the worst status into one
// overall HTTP-style status code plus a human-readable message.
func CheckAll(ctx context.Context, checkLiveness bool, checks []Check) (int, string, error) {
	overallStatus := http.StatusOK
	messages := make([]string, 0, len(checks))

	for _, check := range checks {
		status, message, err := check.Check(ctx, checkLiveness)
		if err != nil || status != http.StatusOK {
			overallStatus = http.StatusServiceUnavailable
		}
		messages = append(messages, fmt.Sprintf(`{"resource": "%s", "status": %d, "error": "%v", "message": "%s"}`, check.Name, status, err, message))
	}

	return overallStatus, fmt.Sprintf(`{"status": %d, "dependencies": [%s]}`, overallStatus, strings.Join(messages, ",\n")), nil
}

// ChainStateCheck uses the last observed apply as a progress signal: a
// Manager whose Apply never returns is functionally dead even though
// the process itself is running. Readiness and liveness probes get the
// same answer.
type ChainStateCheck struct {
	mu         sync.Mutex
	lastbeat   time.Time
	staleAfter time.Duration
}

// NewChainStateCheck builds a Check that fails once more than
// staleAfter has passed since the last heartbeat. Before the first
// heartbeat it reports OK.
func NewChainStateCheck(staleAfter time.Duration) *ChainStateCheck {
	return &ChainStateCheck{staleAfter: staleAfter}
}

// Heartbeat records that the chain state manager's loop made forward
// progress; call this after every successful Apply.
func (c *ChainStateCheck) Heartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastbeat = time.Now()
}

func (c *ChainStateCheck) Check() Check {
	return Check{
		Name: "chainstate",
		Check: func(_ context.Context, _ bool) (int, string, error) {
			c.mu.Lock()
			last := c.lastbeat
			c.mu.Unlock()

			if last.IsZero() {
				return http.StatusOK, "no apply observed yet", nil
			}
			if time.Since(last) > c.staleAfter {
				return http.StatusServiceUnavailable, fmt.Sprintf("no apply in %s", time.Since(last)), nil
			}
			return http.StatusOK, fmt.Sprintf("last apply %s ago", time.Since(last)), nil
		},
	}
}
