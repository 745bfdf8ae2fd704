package source

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
)

func TestEachRecoversPanics(t *testing.T) {
	s := NewSlice(make([]int, 8), WithWorkers(4), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	for range 20 {
		var ran atomic.Int32
		err := s.each(context.Background(), func(i int) error {
			ran.Add(1)
			if i == 3 {
				panic("boom")
			}
			return nil
		})
		if err == nil {
			t.Fatalf("panic was dropped after %d elements", ran.Load())
		}
		if !strings.Contains(err.Error(), "element 3: panic: boom") {
			t.Fatalf("err = %v", err)
		}
	}
}
