package tts

import (
	"context"
	"fmt"
	"io"
	"os"
)

// WriteAudio copies r into dst, truncating any previous content. Nothing is
// written once ctx has ended. If anything fails the partially written file
// is removed and the error wraps [ErrSynthesis].
func WriteAudio(ctx context.Context, dst string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrSynthesis, dst, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrSynthesis, dst, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("engine returned no audio")
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("%w: write %s: %w", ErrSynthesis, dst, err)
	}
	return nil
}
