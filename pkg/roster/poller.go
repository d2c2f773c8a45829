package roster

import (
	"context"
	"sync"
	"time"

	"github.com/mentori/liveclass/pkg/logger"
)

// Lister fetches the current participant list for the room.
type Lister func(ctx context.Context) ([]Participant, error)

// Poller periodically pulls the participant list and feeds it into the
// roster. It exists because the gateway's event push does not deliver
// every roster change promptly; Kick forces an immediate re-poll after
// publish/leave events.
type Poller struct {
	interval time.Duration
	list     Lister
	onTick   func([]Participant)
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	kick    chan struct{}
	started bool
}

func NewPoller(interval time.Duration, list Lister, onTick func([]Participant), log *logger.Logger) *Poller {
	return &Poller{interval: interval, list: list, onTick: onTick, log: log}
}

func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.kick = make(chan struct{}, 1)
	p.started = true
	go p.run(ctx, p.kick)
}

// Kick schedules an immediate poll. No-op when not running.
func (p *Poller) Kick() {
	p.mu.Lock()
	kick := p.kick
	p.mu.Unlock()
	if kick == nil {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

// Stop halts polling. Safe to call when polling was never started,
// and safe to call twice.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.cancel()
	p.cancel = nil
	p.kick = nil
	p.started = false
}

func (p *Poller) run(ctx context.Context, kick chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.poll(ctx)
	for {
		select {
		case <-ticker.C:
			p.poll(ctx)
		case <-kick:
			p.poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	snapshot, err := p.list(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Debug().Err(err).Msg("participant poll")
		}
		return
	}
	if ctx.Err() != nil {
		return // torn down while the request was in flight
	}
	p.onTick(snapshot)
}
