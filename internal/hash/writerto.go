package hash

import (
	"encoding/binary"
	"io"
)

// WriterToWithDomain represents a type writing itself, and knowing its domain.
//
// Providing a domain string lets us distinguish the output of different types
// implementing this same interface.
type WriterToWithDomain interface {
	io.WriterTo

	// Domain returns a context string, which should be unique for each implementor
	Domain() string
}

// writeWithDomain writes out `len(domain) || domain || len(data) || data`.
// The data is buffered so that its length is known before it is written.
func writeWithDomain(w io.Writer, object WriterToWithDomain) error {
	var buf lengthBuffer
	if _, err := object.WriteTo(&buf); err != nil {
		return err
	}
	domain := []byte(object.Domain())
	if err := writeLength(w, len(domain)); err != nil {
		return err
	}
	if _, err := w.Write(domain); err != nil {
		return err
	}
	if err := writeLength(w, len(buf)); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

func writeLength(w io.Writer, n int) error {
	var l [8]byte
	binary.BigEndian.PutUint64(l[:], uint64(n))
	_, err := w.Write(l[:])
	return err
}

type lengthBuffer []byte

func (b *lengthBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

// BytesWithDomain is a useful wrapper to annotate some chunk of data with a domain.
type BytesWithDomain struct {
	TheDomain string
	Bytes     []byte
}

// WriteTo implements io.WriterTo.
func (b BytesWithDomain) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.Bytes)
	return int64(n), err
}

// Domain implements WriterToWithDomain.
func (b BytesWithDomain) Domain() string {
	return b.TheDomain
}
