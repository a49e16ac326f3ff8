//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/xtts-go/tts"
)

// oto supports a single context per process.
var (
	contextOnce sync.Once
	otoCtx      *oto.Context
	otoRate     int
	otoErr      error
)

// Player plays finished buffers on the default output device.
type Player struct {
	ctx        *oto.Context
	sampleRate int
}

// NewPlayer opens the output device at sampleRate. Later calls reuse the
// device and must ask for the same rate.
func NewPlayer(sampleRate int) (*Player, error) {
	contextOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		// Wait for the device to be ready
		<-ready
		otoCtx, otoRate = ctx, sampleRate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if sampleRate != otoRate {
		return nil, fmt.Errorf("output device already opened at %d Hz", otoRate)
	}
	return &Player{ctx: otoCtx, sampleRate: sampleRate}, nil
}

// Play blocks until buf has been played or ctx is done.
func (p *Player) Play(ctx context.Context, buf tts.AudioBuffer) error {
	if len(buf.Samples) == 0 {
		return tts.ErrEmptyOutput
	}

	samples := buf.Samples
	if buf.SampleRate != p.sampleRate {
		samples = Resample(samples, buf.SampleRate, p.sampleRate)
	}

	// The reader must stay referenced until playback ends
	data := PCM16LE(samples)
	player := p.ctx.NewPlayer(bytes.NewReader(data))
	defer player.Close()

	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}
