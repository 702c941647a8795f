// Package archive decodes zip archives as a stream, entry after entry,
// without seeking to the central directory.
package archive

import (
	stdzip "archive/zip"
	"bufio"
	"encoding/binary"
	"hash"
	"io"
	"strings"
	"time"

	"github.com/klauspost/crc32"
	"github.com/krolaw/zipstream"
	"github.com/pkg/errors"
)

// Compression methods.
const (
	Store   uint16 = stdzip.Store
	Deflate uint16 = stdzip.Deflate
)

const (
	fileHeaderSignature   = 0x04034b50
	directoryEndSignature = 0x06054b50

	flagEncrypted      = 0x1
	flagDataDescriptor = 0x8
)

var (
	// ErrFormat is returned when the stream is not a valid zip archive.
	ErrFormat = errors.New("zip: not a valid zip file")
	// ErrAlgorithm is returned for unsupported compression methods.
	ErrAlgorithm = errors.New("zip: unsupported compression algorithm")
	// ErrChecksum is returned when an entry does not match its CRC-32.
	ErrChecksum = errors.New("zip: checksum error")
	// ErrUnsupported is returned for entries that cannot be read without seeking.
	ErrUnsupported = errors.New("zip: unsupported entry")
)

// A Header describes an entry of the archive.
type Header struct {
	Name               string
	Method             uint16
	Flags              uint16
	Modified           time.Time
	CRC32              uint32
	CompressedSize64   uint64
	UncompressedSize64 uint64
}

// IsDir reports whether the entry is a directory.
func (h *Header) IsDir() bool {
	return strings.HasSuffix(h.Name, "/") || strings.HasSuffix(h.Name, `\`)
}

// A Reader reads the entries of a zip archive from a stream.
type Reader struct {
	br      *bufio.Reader
	zr      *zipstream.Reader
	cur     *entry
	sniffed bool
	err     error
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	br := bufio.NewReader(r)
	return &Reader{
		br: br,
		zr: zipstream.NewReader(br),
	}
}

// Next advances to the next entry, discarding the unread bytes of the current one.
// It returns io.EOF once the central directory is reached.
func (z *Reader) Next() (*Header, error) {
	if z.err != nil {
		return nil, z.err
	}

	if !z.sniffed {
		z.sniffed = true
		if err := z.sniff(); err != nil {
			z.err = err
			return nil, err
		}
	}

	if z.cur != nil {
		if _, err := io.Copy(io.Discard, z.cur); err != nil {
			z.err = err
			return nil, err
		}
		z.cur = nil
	}

	fh, err := z.zr.Next()
	if err != nil {
		z.err = convert(err, "")
		return nil, z.err
	}

	h := &Header{
		Name:               fh.Name,
		Method:             fh.Method,
		Flags:              fh.Flags,
		Modified:           fh.Modified,
		CRC32:              fh.CRC32,
		CompressedSize64:   fh.CompressedSize64,
		UncompressedSize64: fh.UncompressedSize64,
	}

	if err = check(h); err != nil {
		z.err = err
		return nil, err
	}

	z.cur = &entry{
		r:      z.zr,
		header: h,
		hash:   crc32.NewIEEE(),
	}
	return h, nil
}

// Read reads from the current entry.
func (z *Reader) Read(p []byte) (int, error) {
	if z.cur == nil {
		return 0, io.EOF
	}
	return z.cur.Read(p)
}

// sniff rejects streams that do not start like a zip archive.
// An archive without entries starts with its end of central directory record.
func (z *Reader) sniff() error {
	sig, err := z.br.Peek(4)
	if err != nil {
		return errors.Wrap(ErrFormat, "truncated archive")
	}

	switch binary.LittleEndian.Uint32(sig) {
	case fileHeaderSignature:
		return nil
	case directoryEndSignature:
		return io.EOF
	default:
		return errors.Wrap(ErrFormat, "bad local file header signature")
	}
}

func check(h *Header) error {
	if h.Flags&flagEncrypted != 0 {
		return errors.Wrapf(ErrUnsupported, "%s: encrypted", h.Name)
	}

	switch h.Method {
	case Store:
		if h.Flags&flagDataDescriptor != 0 && !h.IsDir() {
			// The size is only known once the data has been read.
			return errors.Wrapf(ErrUnsupported, "%s: stored with data descriptor", h.Name)
		}
	case Deflate:
	default:
		return errors.Wrapf(ErrAlgorithm, "%s: method %d", h.Name, h.Method)
	}
	return nil
}

type entry struct {
	r      io.Reader
	header *Header
	hash   hash.Hash32
	err    error
}

func (e *entry) Read(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}

	n, err := e.r.Read(p)
	e.hash.Write(p[:n])

	switch {
	case err == nil:
		return n, nil
	case err == io.EOF:
		e.err = e.finish()
	default:
		e.err = convert(err, e.header.Name)
	}

	return n, e.err
}

func (e *entry) finish() error {
	// The local header only carries the checksum when there is no data descriptor.
	if e.header.Flags&flagDataDescriptor == 0 && e.hash.Sum32() != e.header.CRC32 {
		return errors.Wrap(ErrChecksum, e.header.Name)
	}
	return io.EOF
}

// convert maps the decoding errors onto the package errors.
func convert(err error, name string) error {
	switch {
	case err == io.EOF:
		return io.EOF
	case err == stdzip.ErrChecksum:
		return errors.Wrap(ErrChecksum, name)
	case err == stdzip.ErrAlgorithm:
		return errors.Wrap(ErrAlgorithm, name)
	case err == io.ErrUnexpectedEOF:
		return errors.Wrapf(ErrFormat, "%s: truncated entry", name)
	default:
		return errors.Wrapf(ErrFormat, "%s: %s", name, err)
	}
}
