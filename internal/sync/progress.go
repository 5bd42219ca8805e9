package sync

// Progress is one observational event emitted while a session runs. A
// progress of 100 closes a stage, not the session; consumers must not infer
// durability from an event, only that a batch has been attempted.
type Progress struct {
	Stage    string `json:"stage"`
	Progress int    `json:"progress"` // 0..100
}

// Subscribe registers a progress observer and returns its id and channel.
// Events are dropped, never blocked on, when an observer lags.
func (e *Engine) Subscribe() (int, <-chan Progress) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextObserverID
	e.nextObserverID++
	ch := make(chan Progress, 32)
	e.observers[id] = ch
	return id, ch
}

// Unsubscribe removes a progress observer and closes its channel
func (e *Engine) Unsubscribe(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ch, ok := e.observers[id]; ok {
		delete(e.observers, id)
		close(ch)
	}
}

// emitProgress fans an event out to every observer without blocking
func (e *Engine) emitProgress(stage string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	ev := Progress{Stage: stage, Progress: percent}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.observers {
		select {
		case ch <- ev:
		default:
			// Slow observer, drop the event
		}
	}
}
