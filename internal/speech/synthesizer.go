// Package speech turns agent lines into MP3 files served from the public
// audio directory.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PublicPath is the URL prefix the audio directory is served under.
const PublicPath = "/public"

const assetExt = ".mp3"

var ErrInvalidAssetID = errors.New("invalid asset id")

// TTS produces an audio stream for text.
type TTS interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

type Synthesizer struct {
	tts     TTS
	dir     string
	baseURL string
}

// New returns a Synthesizer writing into dir, creating it if needed.
// baseURL is the externally reachable origin of this service.
func New(tts TTS, dir, baseURL string) (*Synthesizer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &Synthesizer{
		tts:     tts,
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Dir is the directory assets are written to.
func (s *Synthesizer) Dir() string {
	return s.dir
}

// Synthesize writes text as <assetID>.mp3 and returns its public URL. The
// file is renamed into place only once complete, so the provider never
// fetches a partial asset.
func (s *Synthesizer) Synthesize(ctx context.Context, text, assetID string) (string, error) {
	if assetID == "" || filepath.Base(assetID) != assetID || strings.Contains(assetID, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAssetID, assetID)
	}

	audio, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		return "", fmt.Errorf("tts: %w", err)
	}
	defer audio.Close()

	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, audio); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close audio: %w", err)
	}

	name := assetID + assetExt
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("publish audio: %w", err)
	}
	return s.baseURL + PublicPath + "/" + name, nil
}

// Prune deletes assets older than maxAge and returns how many were removed.
func (s *Synthesizer) Prune(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read audio dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != assetExt {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// RunPruner calls Prune every interval until ctx is done.
func (s *Synthesizer) RunPruner(ctx context.Context, interval, maxAge time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(maxAge)
			if err != nil {
				logger.Warn("audio prune failed", "error", err)
			} else if n > 0 {
				logger.Info("pruned audio assets", "count", n)
			}
		}
	}
}
