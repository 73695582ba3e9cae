package engine

import (
	coremqtt "github.com/cmdscript/cmdscript/core/mqtt"
)

// dispatch is the single consumer of the message and link buses. It
// decouples the Run goroutine's blocking waits from subscription
// fan-in: inbound messages keep flowing into log files while the main
// sequence sits in a DELAY or a blocking adapter call. It exits once
// both channels are closed.
func (e *Engine) dispatch(msgCh <-chan coremqtt.Message, linkCh <-chan coremqtt.LinkEvent) {
	defer e.wg.Done()
	for msgCh != nil || linkCh != nil {
		select {
		case m, ok := <-msgCh:
			if !ok {
				msgCh = nil
				continue
			}
			e.onMessage(m)
		case ev, ok := <-linkCh:
			if !ok {
				linkCh = nil
				continue
			}
			e.onLinkEvent(ev)
		}
	}
}

func (e *Engine) onMessage(m coremqtt.Message) {
	e.stats.Received.Inc()
	e.log.Infof("received topic=%s payload=%s", m.Topic, m.Payload)
	e.mu.Lock()
	paths := append([]string(nil), e.routes[m.Route]...)
	e.mu.Unlock()
	for _, path := range paths {
		if err := e.sink.Write(path, m.Topic, m.Payload, m.ReceivedAt); err != nil {
			e.stats.LogErrors.Inc()
			e.log.Errorf("log write: %v", err)
		}
	}
}

// onLinkEvent appends session-state markers to every bound log file.
// A loss is surfaced but not fatal: the script continues best-effort
// and only a later scripted CONNECT re-establishes the session.
func (e *Engine) onLinkEvent(ev coremqtt.LinkEvent) {
	e.mu.Lock()
	var restored bool
	switch ev.State {
	case coremqtt.LinkLost:
		e.linkLost = true
	case coremqtt.LinkUp:
		restored = e.linkLost
		e.linkLost = false
	}
	paths := e.boundPathsLocked()
	e.mu.Unlock()

	marker := markerConnected
	switch {
	case ev.State == coremqtt.LinkLost:
		marker = markerLost
		e.log.Warnf("connection lost: %v", ev.Err)
	case restored:
		marker = markerRestored
	}
	for _, path := range paths {
		if err := e.sink.WriteMarker(path, marker, ev.At); err != nil {
			e.stats.LogErrors.Inc()
			e.log.Errorf("log write: %v", err)
		}
	}
}

// boundPathsLocked returns the distinct log files of all standing
// subscriptions. Callers must hold e.mu.
func (e *Engine) boundPathsLocked() []string {
	seen := make(map[string]struct{}, len(e.subs))
	var paths []string
	for _, sub := range e.subs {
		if _, ok := seen[sub.logFile]; ok {
			continue
		}
		seen[sub.logFile] = struct{}{}
		paths = append(paths, sub.logFile)
	}
	return paths
}
