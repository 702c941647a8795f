// Package pipeline composes stream transformations.
//
// Each Stage consumes an input stream and produces an output stream.
// Stages built with Transform run in their own goroutine behind an io.Pipe:
// they only pull from upstream when downstream reads, so memory stays bounded
// by what a single stage needs.
package pipeline

import (
	"io"
)

// A Stage transforms an input stream into an output stream.
type Stage func(r io.Reader) io.ReadCloser

// Transform returns a Stage running fn concurrently.
// fn reads its input from r and writes its output to w.
// The error returned by fn is reported to the reader of the stage output.
func Transform(fn func(w io.Writer, r io.Reader) error) Stage {
	return func(r io.Reader) io.ReadCloser {
		pr, pw := io.Pipe()

		go func() {
			pw.CloseWithError(fn(pw, r))
		}()

		return pr
	}
}

// Chain composes the stages over r, in order.
// Closing the returned ReadCloser closes every stage.
func Chain(r io.Reader, stages ...Stage) io.ReadCloser {
	c := &chain{
		ReadCloser: io.NopCloser(r),
	}

	for _, stage := range stages {
		c.ReadCloser = stage(c.ReadCloser)
		c.closers = append(c.closers, c.ReadCloser)
	}

	return c
}

type chain struct {
	io.ReadCloser
	closers []io.Closer
}

func (c *chain) Close() error {
	var err error

	// Downstream first so the upstream writers are released.
	for i := len(c.closers) - 1; i >= 0; i-- {
		if cerr := c.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
