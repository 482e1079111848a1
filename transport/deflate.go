package transport

import (
	"compress/flate"
	"context"
	"io"
	"sync"

	"mailproto/mailerr"
)

// DeflateTransport wraps an inner Transport in a raw DEFLATE stream (RFC
// 1951, no zlib wrapper) once the server has acknowledged COMPRESS=DEFLATE.
// Reads flow through a flate.Reader fed by an io.Pipe that ReadAvailable
// tops up from the inner transport, so a compressed block spanning two
// inner reads is handled transparently by the flate reader's own buffering.
type DeflateTransport struct {
	inner Transport

	mu     sync.Mutex
	flateR io.ReadCloser
	pipeW  *io.PipeWriter
	flateW *flate.Writer
}

// NewDeflateTransport activates raw-DEFLATE compression on top of inner.
// algorithm is validated against the one form the wire protocol defines.
func NewDeflateTransport(inner Transport, algorithm string) (*DeflateTransport, error) {
	if algorithm != "deflate" {
		return nil, &mailerr.FeatureUnavailable{Name: "compression:" + algorithm}
	}
	pr, pw := io.Pipe()
	flateR := flate.NewReader(pr)
	flateW, err := flate.NewWriter(&deflateSink{inner: inner}, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	d := &DeflateTransport{
		inner:  inner,
		flateR: flateR,
		pipeW:  pw,
		flateW: flateW,
	}
	return d, nil
}

// deflateSink adapts Transport.Write to io.Writer for flate.Writer, using
// context.Background since writes happen synchronously under Write's caller.
type deflateSink struct{ inner Transport }

func (s *deflateSink) Write(p []byte) (int, error) {
	return s.inner.Write(context.Background(), p)
}

func (d *DeflateTransport) Open(ctx context.Context) error { return d.inner.Open(ctx) }

func (d *DeflateTransport) Close() error {
	d.pipeW.CloseWithError(io.EOF)
	d.flateR.Close()
	return d.inner.Close()
}

func (d *DeflateTransport) Write(ctx context.Context, p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.flateW.Write(p)
	if err != nil {
		return n, err
	}
	if err := d.flateW.Flush(); err != nil {
		return n, err
	}
	return n, nil
}

// ReadAvailable tops the pipe up with one inner read, then drains
// whatever the flate reader can now produce. A compressed block that
// straddles two inner reads simply yields zero decompressed bytes on
// the first call and the pending bytes on a later one, which is legal
// per ReadAvailable's "empty slice means nothing right now" contract
// only at EOF — here we instead loop until the flate reader yields
// something or the inner transport hits EOF.
func (d *DeflateTransport) ReadAvailable(ctx context.Context, max int) ([]byte, error) {
	out := make([]byte, max)
	for {
		raw, err := d.inner.ReadAvailable(ctx, max)
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			return []byte{}, nil
		}
		go func() { d.pipeW.Write(raw) }()
		n, rerr := d.flateR.Read(out)
		if n > 0 {
			return out[:n], nil
		}
		if rerr != nil && rerr != io.EOF {
			return nil, &mailerr.ProtocolViolation{Detail: "deflate: " + rerr.Error()}
		}
	}
}
