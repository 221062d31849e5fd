package llamastack

import (
	"bufio"
	"io"
	"strings"
)

// sseScanner reads the "data:" payloads of a Server-Sent Events stream.
// Events are delimited by blank lines; multiple data lines within one
// event are joined with newlines. Comment lines and other fields are
// ignored, which is all the chat-completions stream requires.
type sseScanner struct {
	reader  *bufio.Reader
	current string
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event. It returns false at end of stream or
// on error; call Err to distinguish.
func (s *sseScanner) Next() bool {
	if s.err != nil {
		return false
	}

	var dataLines []string
	for {
		line, err := s.reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if line == "" && err == nil {
			// Blank line ends the event; skip leading blanks.
			if len(dataLines) == 0 {
				continue
			}
			s.current = strings.Join(dataLines, "\n")
			return true
		}

		if value, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimPrefix(value, " "))
		}

		if err != nil {
			if err != io.EOF {
				s.err = err
				return false
			}
			if len(dataLines) > 0 {
				s.current = strings.Join(dataLines, "\n")
				s.err = io.EOF
				return true
			}
			return false
		}
	}
}

// Data returns the payload of the current event.
func (s *sseScanner) Data() string {
	return s.current
}

// Err reports a read failure, or nil after a clean end of stream.
func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
