// Package breader implements a rewindable buffered reader: a cache of bytes
// queued in front of a live socket, and a restore log that lets a failed
// protocol probe put consumed bytes back so the next probe sees the
// identical stream.
package breader

import (
	"sync"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// Source is the minimal socket abstraction the Reader pulls fresh bytes
// from once its cache is empty. Stream sources (TCP/TLS/QUIC) implement
// ReadSome as a single partial read; datagram sources (UDP) implement it
// as exactly one recv, never merging packets.
type Source interface {
	// ReadSome returns between 1 and len(p) bytes read into p, or an error.
	// Returning (0, nil) is never valid; a stream EOF must be an error.
	ReadSome(p []byte) (int, error)
}

// recvBufferSize bounds a single ReadSome call against a stream Source.
const recvBufferSize = 32 * 1024

// Reader wraps a Source with cache/restore semantics. Safe for concurrent
// use from at most one reader goroutine at a time; the mutex here guards
// bookkeeping, not concurrent reads.
type Reader struct {
	mu      sync.Mutex
	src     Source
	cache   [][]byte
	restore [][]byte
	noStore bool
}

// New wraps src in a Reader with empty cache/restore state.
func New(src Source) *Reader {
	return &Reader{src: src}
}

// Cache pushes buf onto the back of the cache queue — logically after
// anything already buffered but before the live socket. Used by service
// listeners to seed a UDP "socket" with its first datagram.
func (r *Reader) Cache(buf []byte) {
	if len(buf) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = append(r.cache, buf)
}

// ReadSome returns at least one byte: drained from the cache if non-empty,
// else pulled from the Source with a single ReadSome call.
func (r *Reader) ReadSome() ([]byte, error) {
	r.mu.Lock()
	if len(r.cache) > 0 {
		buf := r.cache[0]
		r.cache = r.cache[1:]
		r.record(buf)
		r.mu.Unlock()
		return buf, nil
	}
	r.mu.Unlock()

	buf := make([]byte, recvBufferSize)
	n, err := r.src.ReadSome(buf)
	if err != nil {
		return nil, cerrors.NewIOError("read_some", err)
	}
	if n == 0 {
		return nil, cerrors.NewIOError("read_some", errZeroRead{})
	}
	out := buf[:n]

	r.mu.Lock()
	r.record(out)
	r.mu.Unlock()
	return out, nil
}

type errZeroRead struct{}

func (errZeroRead) Error() string { return "read returned 0 bytes (stream EOF)" }

// ReadExact returns exactly n bytes, pulling from the cache first and then
// from the Source as needed. A datagram Source must supply at least the
// missing count in a single recv or the call fails with a short-datagram
// error.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}

	r.mu.Lock()
	have := r.cacheLen()
	r.mu.Unlock()

	for have < n {
		buf := make([]byte, recvBufferSize)
		read, err := r.src.ReadSome(buf)
		if err != nil {
			return nil, cerrors.NewIOError("read_exact", err)
		}
		if read == 0 {
			return nil, cerrors.NewIOError("read_exact", errZeroRead{})
		}

		if _, isDatagram := r.src.(DatagramSource); isDatagram && read < n-have {
			return nil, cerrors.NewShortDatagramError(n-have, read)
		}

		chunk := append([]byte(nil), buf[:read]...)
		r.mu.Lock()
		r.cache = append(r.cache, chunk)
		have = r.cacheLen()
		r.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pull(n), nil
}

// DatagramSource marks a Source whose ReadSome never spans more than one
// underlying packet, so ReadExact can enforce the short-datagram rule.
type DatagramSource interface {
	Source
	Datagram()
}

// cacheLen returns the total buffered bytes across all cache chunks.
// Callers must hold r.mu.
func (r *Reader) cacheLen() int {
	total := 0
	for _, c := range r.cache {
		total += len(c)
	}
	return total
}

// pull removes exactly n bytes from the front of the cache, splitting the
// last chunk if needed, and records what was returned for restore. Callers
// must hold r.mu.
func (r *Reader) pull(n int) []byte {
	out := make([]byte, 0, n)
	for n > 0 && len(r.cache) > 0 {
		chunk := r.cache[0]
		if len(chunk) <= n {
			out = append(out, chunk...)
			n -= len(chunk)
			r.cache = r.cache[1:]
		} else {
			out = append(out, chunk[:n]...)
			r.cache[0] = chunk[n:]
			n = 0
		}
	}
	r.record(out)
	return out
}

// record appends buf to the restore log unless restoration has been
// disabled. Callers must hold r.mu.
func (r *Reader) record(buf []byte) {
	if r.noStore || len(buf) == 0 {
		return
	}
	cp := append([]byte(nil), buf...)
	r.restore = append(r.restore, cp)
}

// Restore moves every recorded restore chunk back to the front of the
// cache, in reverse insertion order, so the next read reproduces exactly
// what the previous probe consumed.
func (r *Reader) Restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.restore) - 1; i >= 0; i-- {
		r.cache = append([][]byte{r.restore[i]}, r.cache...)
	}
	r.restore = nil
}

// DisableRestore clears the restore log and stops further recording,
// bounding restore memory at zero. Called once Inbound commits to a
// Protocol.
func (r *Reader) DisableRestore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restore = nil
	r.noStore = true
}
