package daemon

import (
	"log/slog"
	"os"
	"time"

	"vlab/internal/config"
	"vlab/internal/metrics"
	"vlab/internal/store"
)

// Pruner evicts the oldest already-uploaded footage when the drop directory
// grows beyond the configured cap. Videos still PENDING are never touched,
// which acts as backpressure when the backend is unreachable.
type Pruner struct {
	cfg   *config.Config
	store *store.Store
	met   *metrics.Metrics
	log   *slog.Logger
	stop  chan struct{}
}

func NewPruner(cfg *config.Config, s *store.Store, met *metrics.Metrics, logger *slog.Logger) *Pruner {
	return &Pruner{
		cfg:   cfg,
		store: s,
		met:   met,
		log:   logger,
		stop:  make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-ticker.C:
				p.Prune()
			case <-p.stop:
				ticker.Stop()
				return
			}
		}
	}()
}

func (p *Pruner) Stop() {
	close(p.stop)
}

// Prune deletes one batch of uploaded footage if the tracked size exceeds
// the cap. The next tick re-checks, so a single batch per tick is enough.
func (p *Pruner) Prune() {
	maxBytes := int64(p.cfg.MaxDataSizeGB * 1024 * 1024 * 1024)

	currentSize, err := p.store.TotalSize()
	if err != nil {
		p.log.Error("Pruner: error getting total size", "error", err)
		return
	}
	if currentSize <= maxBytes {
		return
	}

	p.log.Info("Pruner: starting eviction", "current_bytes", currentSize, "max_bytes", maxBytes)

	candidates, err := p.store.PruneCandidates(50)
	if err != nil {
		p.log.Error("Pruner: error fetching candidates", "error", err)
		return
	}
	if len(candidates) == 0 {
		p.log.Warn("Pruner: over the size cap but nothing uploaded to delete, backpressure active")
		return
	}

	for _, f := range candidates {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			p.log.Error("Pruner: failed to remove file", "path", f.Path, "error", err)
			continue
		}
		if err := p.store.RemoveUpload(f.Path); err != nil {
			p.log.Error("Pruner: failed to remove queue record", "path", f.Path, "error", err)
			continue
		}
		p.met.PrunedFiles.Inc()
		p.log.Info("Pruned", "path", f.Path)
	}
}
