package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cmdscript/cmdscript/core/logger"
	"github.com/cmdscript/cmdscript/core/script"
)

type publishFunc func(topic string, qos byte, payload string) error

// periodicTask is one standing CFG_PUB_EACH publication. Ticks come
// from a time.Ticker, so each tick is scheduled relative to the
// previous nominal tick and drift stays bounded over long runs.
type periodicTask struct {
	interval time.Duration
	qos      byte
	topic    string
	payload  string
	started  bool
	cancel   context.CancelFunc
}

// taskRegistry tracks every periodic task so the shutdown path can
// iterate and cancel them; no task is ever fire-and-forget.
type taskRegistry struct {
	mu    sync.Mutex
	tasks []*periodicTask
	wg    sync.WaitGroup
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{}
}

func (r *taskRegistry) add(c script.PubEach) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, &periodicTask{
		interval: c.Interval,
		qos:      c.QoS,
		topic:    c.Topic,
		payload:  c.Payload,
	})
}

func (r *taskRegistry) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// startPending launches every registered task that is not yet running.
// Tasks registered before the first CONNECT start here once the session
// is live.
func (r *taskRegistry) startPending(pub publishFunc, log logger.Logger, onTick func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.started {
			continue
		}
		t.started = true
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		r.wg.Add(1)
		go r.run(ctx, t, pub, log, onTick)
	}
}

func (r *taskRegistry) run(ctx context.Context, t *periodicTask, pub publishFunc, log logger.Logger, onTick func()) {
	defer r.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			onTick()
			if err := pub(t.topic, t.qos, t.payload); err != nil {
				log.Warnf("periodic publish %s: %v", t.topic, err)
				continue
			}
			log.Debugf("periodic publish qos=%d topic=%s payload=%s", t.qos, t.topic, t.payload)
		}
	}
}

// stopAll cancels every running task and waits for the goroutines to
// finish.
func (r *taskRegistry) stopAll() {
	r.mu.Lock()
	for _, t := range r.tasks {
		if t.started && t.cancel != nil {
			t.cancel()
		}
	}
	r.mu.Unlock()
	r.wg.Wait()
}
