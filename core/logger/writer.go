package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter decouples log formatting from sink I/O: formatted lines
// are queued and a single goroutine fans them out to every sink. A full
// queue degrades to a blocking enqueue so lines are never dropped.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	sinks   []*bufio.Writer
	failure error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue:    make(chan []byte, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.pump()
	return w
}

// Write enqueues one formatted line for delivery to all sinks.
func (w *asyncWriter) Write(line []byte) error {
	if err := w.err(); err != nil {
		return err
	}
	if len(line) == 0 {
		return nil
	}
	buf := make([]byte, len(line))
	copy(buf, line)
	w.queue <- buf
	return nil
}

// Flush blocks until everything queued so far has reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.err(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.flushReq <- ack
	return <-ack
}

// Close drains the queue, flushes, and reports the first write error.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.queue) })
	<-w.done
	return w.err()
}

func (w *asyncWriter) pump() {
	for {
		select {
		case line, open := <-w.queue:
			if !open {
				_ = w.flushSinks()
				close(w.done)
				return
			}
			if err := w.deliver(line); err != nil {
				w.recordErr(err)
			}
		case ack := <-w.flushReq:
			ack <- w.flushSinks()
		}
	}
}

func (w *asyncWriter) deliver(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			return err
		}
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushSinks() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failure
}

func (w *asyncWriter) recordErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failure == nil {
		w.failure = err
	}
}
