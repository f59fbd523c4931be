package transport

import "sync"

// Events holds connection callbacks registered through options.
type Events struct {
	mu        sync.Mutex
	onConnect []func(addr string)
}

func (te *Events) OnConnect(f func(addr string)) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.onConnect = append(te.onConnect, f)
}

func (te *Events) TriggerConnect(addr string) {
	te.mu.Lock()
	callbacks := append([]func(string){}, te.onConnect...)
	te.mu.Unlock()

	for _, f := range callbacks {
		f(addr)
	}
}
