package archive

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Selector picks one raster from the candidates enumerated under an
// extraction directory. Selection is a documented heuristic, so it is kept
// swappable rather than baked into the extraction code.
type Selector interface {
	Select(candidates []string) (string, error)
}

// LargestSelector picks the largest raster by file size. Multi-file atlas
// archives carry previews and per-layer tiles next to the primary raster;
// size is the only signal available without metadata.
type LargestSelector struct{}

// Select returns the largest candidate by on-disk size.
func (LargestSelector) Select(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoRaster
	}
	best := ""
	var bestSize int64 = -1
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil {
			return "", eris.Wrapf(err, "archive: stat %s", c)
		}
		if info.Size() > bestSize {
			best, bestSize = c, info.Size()
		}
	}
	return best, nil
}

// HintSelector picks the first raster whose path contains the target hint
// as a case-insensitive substring, falling back to the largest raster with
// a warning when nothing matches.
type HintSelector struct {
	Hint string
}

// Select applies the hint match with largest-size fallback.
func (s HintSelector) Select(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoRaster
	}
	hint := strings.ToLower(s.Hint)
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c), hint) {
			zap.L().Info("target file matched",
				zap.String("component", "archive"),
				zap.String("hint", s.Hint),
				zap.String("raster", c),
			)
			return c, nil
		}
	}
	zap.L().Warn("target file not found in archive, falling back to largest raster",
		zap.String("component", "archive"),
		zap.String("hint", s.Hint),
	)
	return LargestSelector{}.Select(candidates)
}

// SelectorFor returns the selection policy for an optional target hint.
func SelectorFor(hint string) Selector {
	if hint != "" {
		return HintSelector{Hint: hint}
	}
	return LargestSelector{}
}
