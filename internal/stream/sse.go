package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

const maxFrameSize = 1 << 20

var errFrameTooLarge = errors.New("frame exceeds 1 MiB")

// Decoder splits a Server-Sent Events byte stream into frame payloads.
//
// Frames end at a blank line. Payloads spread over several "data:" lines are
// joined with "\n". Comments and other SSE fields are ignored. A final frame
// that is not followed by a blank line is still returned at EOF. A frame
// larger than 1 MiB is consumed and reported as a *DecodeError.
type Decoder struct {
	r        *bufio.Reader
	data     bytes.Buffer
	pending  bool
	oversize bool
	eof      bool
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next frame payload. It returns io.EOF when the input is
// exhausted, a *DecodeError for an oversized frame and any read error
// otherwise.
func (d *Decoder) Next() ([]byte, error) {
	for !d.eof {
		line, truncated, err := d.readLine()
		if errors.Is(err, io.EOF) {
			d.eof = true
		} else if err != nil {
			return nil, err
		}

		if len(line) == 0 {
			if d.eof && !truncated {
				break
			}
			if d.pending {
				return d.flush()
			}
			continue
		}
		// Comment line.
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if !bytes.Equal(field, []byte("data")) {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))

		if d.pending {
			value = append([]byte("\n"), value...)
		}
		d.pending = true
		if truncated || d.data.Len()+len(value) > maxFrameSize {
			d.oversize = true
		}
		if !d.oversize {
			d.data.Write(value)
		}
	}

	if d.pending {
		return d.flush()
	}
	return nil, io.EOF
}

// readLine returns the next line without its terminator. Bytes past
// maxFrameSize are discarded and reported through truncated.
func (d *Decoder) readLine() (line []byte, truncated bool, err error) {
	for {
		var chunk []byte
		chunk, err = d.r.ReadSlice('\n')
		if err == nil {
			chunk = chunk[:len(chunk)-1]
		}
		if room := maxFrameSize - len(line); len(chunk) > room {
			line = append(line, chunk[:room]...)
			truncated = true
		} else {
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimSuffix(line, []byte("\r")), truncated, err
	}
}

func (d *Decoder) flush() ([]byte, error) {
	out := bytes.Clone(d.data.Bytes())
	oversize := d.oversize
	d.data.Reset()
	d.pending = false
	d.oversize = false
	if oversize {
		return nil, &DecodeError{Frame: string(out), Err: errFrameTooLarge}
	}
	return out, nil
}
