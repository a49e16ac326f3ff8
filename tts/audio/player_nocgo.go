//go:build nocgo
// +build nocgo

package audio

import (
	"context"
	"errors"

	"github.com/dgnsrekt/xtts-go/tts"
)

// Stub player for headless builds without cgo or ALSA headers.

// ErrPlaybackUnavailable is returned by every player call in a nocgo build.
var ErrPlaybackUnavailable = errors.New("audio playback not available in nocgo build")

// Player is a stub in nocgo builds.
type Player struct{}

// NewPlayer always fails in nocgo builds.
func NewPlayer(int) (*Player, error) {
	return nil, ErrPlaybackUnavailable
}

// Play always fails in nocgo builds.
func (p *Player) Play(context.Context, tts.AudioBuffer) error {
	return ErrPlaybackUnavailable
}
