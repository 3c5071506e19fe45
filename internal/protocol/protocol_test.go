package protocol

import "errors"

// fakeSocket is an in-memory Socket for exercising ResolveDestAddr/codec
// methods without a real network connection. ReadSome/ReadExact are fed
// from a queue of datagram-sized chunks (one chunk per ReadSome call, or
// a flat byte stream for ReadExact, mirroring breader.Reader's contract).
type fakeSocket struct {
	chunks   [][]byte
	flat     []byte
	restored []byte
	sent     [][]byte
	datagram bool
}

func newFakeSocket(datagram bool, chunks ...[]byte) *fakeSocket {
	f := &fakeSocket{datagram: datagram}
	for _, c := range chunks {
		f.chunks = append(f.chunks, c)
		f.flat = append(f.flat, c...)
	}
	return f
}

var errFakeSocketEOF = errors.New("fakeSocket: no more data")

func (f *fakeSocket) ReadSome() ([]byte, error) {
	if len(f.chunks) == 0 {
		return nil, errFakeSocketEOF
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return c, nil
}

func (f *fakeSocket) ReadExact(n int) ([]byte, error) {
	if len(f.flat) < n {
		return nil, errFakeSocketEOF
	}
	out := f.flat[:n]
	f.flat = f.flat[n:]
	return out, nil
}

func (f *fakeSocket) Cache(buf []byte) {
	f.flat = append(append([]byte(nil), buf...), f.flat...)
}

func (f *fakeSocket) Restore() {
	f.restored = append([]byte{}, f.flat...)
}

func (f *fakeSocket) DisableRestore() {}

func (f *fakeSocket) Send(buf []byte) error {
	f.sent = append(f.sent, append([]byte(nil), buf...))
	return nil
}

func (f *fakeSocket) IsDatagram() bool { return f.datagram }
