package extract

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TextReader reads a document as lines of text. A UTF-8 or UTF-16 byte
// order mark selects the encoding; without one the input is UTF-8 and
// invalid bytes become U+FFFD.
type TextReader struct{}

func (TextReader) Read(r io.Reader) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	br := bufio.NewReader(transform.NewReader(r, decoder))

	var sb strings.Builder
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			sb.WriteString(strings.TrimRight(line, "\r\n"))
			sb.WriteByte('\n')
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: text: %w", ErrExtraction, err)
		}
	}
	return sb.String(), nil
}
