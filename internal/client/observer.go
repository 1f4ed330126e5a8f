package client

import (
	"log"
	"time"
)

// Attempt describes one request attempt for logging and metrics
type Attempt struct {
	Method     string
	URL        string
	Attempt    int
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Success reports whether the attempt produced a 2xx response
func (a Attempt) Success() bool {
	return a.Err == nil
}

// Observer is notified after every attempt. It must not affect the request;
// panics are recovered by the client.
type Observer interface {
	ObserveAttempt(Attempt)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Attempt)

// ObserveAttempt calls f(a)
func (f ObserverFunc) ObserveAttempt(a Attempt) {
	f(a)
}

// LogObserver writes one line per attempt
type LogObserver struct {
	Logger *log.Logger
}

// ObserveAttempt logs the attempt outcome
func (o LogObserver) ObserveAttempt(a Attempt) {
	l := o.Logger
	if l == nil {
		l = log.Default()
	}
	if a.Success() {
		l.Printf("Client | %s %s -> %d (%s)", a.Method, a.URL, a.StatusCode, a.Duration.Round(time.Millisecond))
		return
	}
	l.Printf("WARNING | Client: %s %s attempt %d failed after %s: %v",
		a.Method, a.URL, a.Attempt, a.Duration.Round(time.Millisecond), a.Err)
}
