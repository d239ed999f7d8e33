//go:build !opus

package audio

import (
	"fmt"

	"github.com/foxseedlab/nlscribe/internal/audio"
)

func OpenOpusFile(path string, _ int) (audio.Source, error) {
	return nil, fmt.Errorf("%w: %s needs a build with the opus tag", audio.ErrUnsupportedFormat, path)
}
