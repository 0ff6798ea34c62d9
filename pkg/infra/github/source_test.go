package github_test

import (
	"bytes"
	"context"
	"io"
)

type bytesSource struct {
	name string
	data []byte
}

func (s *bytesSource) Name() string { return s.name }
func (s *bytesSource) Size() int64  { return int64(len(s.data)) }
func (s *bytesSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}
