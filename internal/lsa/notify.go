package lsa

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/kafka"
)

// ArtifactsPublished announces a freshly written bundle.
type ArtifactsPublished struct {
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	K           int       `json:"k"`
	Terms       int       `json:"terms"`
	Documents   int       `json:"documents"`
	PublishedAt time.Time `json:"published_at"`
}

// Notifier publishes ArtifactsPublished events after a rebuild.
type Notifier struct {
	publisher kafka.Publisher
}

func NewNotifier(publisher kafka.Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

// Announce tells serving instances that m has been written to path.
func (n *Notifier) Announce(ctx context.Context, path string, m *Model) error {
	event := ArtifactsPublished{
		Path:        path,
		Fingerprint: m.Fingerprint,
		K:           m.K(),
		Terms:       len(m.Terms),
		Documents:   len(m.Documents),
		PublishedAt: time.Now().UTC(),
	}
	if err := n.publisher.Publish(ctx, kafka.Event{Key: m.Fingerprint, Value: event}); err != nil {
		return fmt.Errorf("announcing lsa bundle: %w", err)
	}
	return nil
}

// ReloadHandler loads announced bundles and swaps them into holder. Bad
// payloads are logged and committed; unreadable bundles are returned as
// errors so the notice is retried. onSwap, if set, runs after each swap.
func ReloadHandler(holder *Holder, onSwap func(m *Model, generation uint64)) kafka.MessageHandler {
	logger := slog.Default().With("component", "lsa-reload")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ArtifactsPublished](value)
		if err != nil {
			logger.Error("dropping malformed notice", "key", string(key), "error", err)
			return nil
		}
		m, err := ReadBundle(event.Path)
		if err != nil {
			return fmt.Errorf("loading announced bundle: %w", err)
		}
		if m.Fingerprint != event.Fingerprint {
			logger.Warn("bundle fingerprint differs from notice",
				"path", event.Path,
				"notice", event.Fingerprint,
				"bundle", m.Fingerprint,
			)
		}
		gen := holder.Swap(m)
		logger.Info("lsa model swapped",
			"path", event.Path,
			"generation", gen,
			"k", m.K(),
			"documents", len(m.Documents),
		)
		if onSwap != nil {
			onSwap(m, gen)
		}
		return nil
	}
}
