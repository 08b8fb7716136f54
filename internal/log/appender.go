package log

import (
	"io"
	"sync"
)

// MultiWriter fans a log line out to every output. A failing output does not
// stop the others; the last error is returned.
type MultiWriter struct {
	mu      sync.Mutex
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(w io.Writer) *MultiWriter {
	m.mu.Lock()
	m.writers = append(m.writers, w)
	m.mu.Unlock()
	return m
}
