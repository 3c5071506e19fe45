// Package timing measures the stage boundaries of the test subcommand's
// single smoke-test request: local TCP connect to the proxy, time to first
// response byte, and total round-trip time.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures the timing breakdown of one smoke-test request.
type Metrics struct {
	// TCPConnect is the time spent establishing the local TCP connection to
	// the proxy's bound listener.
	TCPConnect time.Duration `json:"tcp_connect"`

	// TTFB (Time To First Byte) is the time from request write to the first
	// byte of the response, covering proxy dial, tunnel handshake (if any),
	// and upstream server processing.
	TTFB time.Duration `json:"ttfb"`

	// TotalTime is the total end-to-end time from Timer creation to
	// GetMetrics being called.
	TotalTime time.Duration `json:"total_time"`
}

// Timer brackets the stage boundaries of a single smoke-test request.
type Timer struct {
	start     time.Time
	tcpStart  time.Time
	tcpEnd    time.Time
	ttfbStart time.Time
	ttfbEnd   time.Time
}

// NewTimer starts a new timing measurement session.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// StartTCP marks the beginning of the local TCP connect.
func (t *Timer) StartTCP() {
	t.tcpStart = time.Now()
}

// EndTCP marks the end of the local TCP connect.
func (t *Timer) EndTCP() {
	t.tcpEnd = time.Now()
}

// StartTTFB marks when the request has been written and the timer starts
// waiting for the first response byte.
func (t *Timer) StartTTFB() {
	t.ttfbStart = time.Now()
}

// EndTTFB marks when the first response byte arrives.
func (t *Timer) EndTTFB() {
	t.ttfbEnd = time.Now()
}

// GetMetrics returns the timing breakdown recorded so far.
func (t *Timer) GetMetrics() Metrics {
	m := Metrics{TotalTime: time.Since(t.start)}

	if !t.tcpStart.IsZero() && !t.tcpEnd.IsZero() {
		m.TCPConnect = t.tcpEnd.Sub(t.tcpStart)
	}
	if !t.ttfbStart.IsZero() && !t.ttfbEnd.IsZero() {
		m.TTFB = t.ttfbEnd.Sub(t.ttfbStart)
	}

	return m
}

// String provides a human-readable representation of the metrics.
func (m Metrics) String() string {
	return fmt.Sprintf("TCPConnect: %v, TTFB: %v, TotalTime: %v", m.TCPConnect, m.TTFB, m.TotalTime)
}
