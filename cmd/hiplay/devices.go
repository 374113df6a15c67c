package main

import (
	"context"
	"sync"

	"github.com/MrWong99/hiplay/internal/config"
	"github.com/MrWong99/hiplay/internal/session"
	"github.com/MrWong99/hiplay/pkg/audio/capture"
	"github.com/MrWong99/hiplay/pkg/audio/ffmpeg"
	"github.com/MrWong99/hiplay/pkg/audio/playback"
)

var _ session.Devices = (*devices)(nil)

// devices opens the ffmpeg-backed microphone and the ffplay-backed player.
type devices struct {
	cfg config.AudioConfig

	mu     sync.Mutex
	player *ffmpeg.Player
}

func newDevices(cfg config.AudioConfig) *devices {
	return &devices{cfg: cfg}
}

// OpenInput implements [session.Devices].
func (d *devices) OpenInput(ctx context.Context) (capture.Source, error) {
	mic, err := ffmpeg.OpenMic(ctx,
		ffmpeg.WithFFmpegPath(d.cfg.FFmpegPath),
		ffmpeg.WithInputDevice(d.cfg.InputDevice),
		ffmpeg.WithInputRate(d.cfg.InputSampleRate),
	)
	if err != nil {
		return nil, err
	}
	return mic, nil
}

// Output implements [session.Devices].
func (d *devices) Output() (playback.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		p, err := ffmpeg.NewPlayer(
			ffmpeg.WithFFplayPath(d.cfg.FFplayPath),
			ffmpeg.WithOutputRate(d.cfg.OutputSampleRate),
		)
		if err != nil {
			return nil, err
		}
		d.player = p
	}
	return d.player, nil
}

// Close stops the player process, if one was started.
func (d *devices) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	return d.player.Close()
}
