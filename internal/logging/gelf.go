package logging

import (
	"fmt"
	"io"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfWriter connects a GELF UDP writer to the given Graylog address.
// The returned writer chunks oversized records per the GELF spec.
func NewGelfWriter(addr string) (io.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to graylog at %s: %w", addr, err)
	}
	return w, nil
}
