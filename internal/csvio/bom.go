package csvio

import (
	"bufio"
	"io"
)

// newBOMSkippingReader returns a reader that drops a UTF-8 byte-order mark
// (0xEF 0xBB 0xBF) from the start of the stream. Files exported by Windows
// spreadsheet tools routinely carry one, and it would otherwise end up glued
// to the first header cell.
func newBOMSkippingReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(3)
	if err == nil && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	return br
}
