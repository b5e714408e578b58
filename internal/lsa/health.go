package lsa

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/health"
)

// HealthCheck reports the served model. A missing model or one built from a
// different index than the one loaded is degraded: direct ranking still
// works, concept ranking is stale or unavailable.
func HealthCheck(holder *Holder, indexFingerprint string) health.Check {
	return func(context.Context) health.ComponentHealth {
		m := holder.Load()
		switch {
		case m == nil:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no model loaded"}
		case m.Fingerprint != indexFingerprint:
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("model built from index %s, serving index %s", m.Fingerprint, indexFingerprint),
			}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, k=%d, %d documents", holder.Generation(), m.K(), len(m.Documents)),
		}
	}
}
