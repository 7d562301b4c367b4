package transcode

import (
	"context"
	"strconv"
	"sync"

	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/logging"
)

// PCM is anything that can render itself as interleaved s16le bytes.
type PCM interface {
	Bytes() []byte
}

// Player streams PCM to an ffplay subprocess for audible playback.
type Player struct {
	config   *DecoderConfig
	format   Format
	executor CommandExecutor
	logger   logging.Logger

	mu   sync.Mutex
	proc *Process
}

// NewPlayer creates a player for PCM in the given format. The player does not
// start until Start is called.
func NewPlayer(cfg *DecoderConfig, format Format, executor CommandExecutor) *Player {
	if cfg == nil {
		cfg = DefaultDecoderConfig()
	}
	return &Player{
		config:   cfg,
		format:   format,
		executor: executor,
		logger: logging.WithFields(logging.Fields{
			"component": "audio_player",
		}),
	}
}

// PlayerArgs returns the ffplay arguments for raw PCM on stdin.
func PlayerArgs(format Format, debug bool) []string {
	args := []string{"-hide_banner"}
	if !debug {
		args = append(args, "-loglevel", "error")
	}
	return append(args,
		"-f", "s16le",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"-nodisp",
		"-",
	)
}

// Start launches the player subprocess. Calling Start on a running player is a no-op.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.proc != nil {
		return nil
	}
	if err := p.format.Validate(); err != nil {
		return err
	}

	proc, err := Start(ctx, &ProcessOptions{
		Path:        p.config.FFplayPath,
		Args:        PlayerArgs(p.format, p.config.Debug),
		Stdin:       true,
		Debug:       p.config.Debug,
		StopTimeout: p.config.StopTimeout,
		Executor:    p.executor,
		Logger:      p.logger,
	})
	if err != nil {
		return err
	}
	p.proc = proc
	return nil
}

// Play writes the PCM bytes of audio to the player.
func (p *Player) Play(audio PCM) error {
	p.mu.Lock()
	proc := p.proc
	p.mu.Unlock()

	if proc == nil {
		return errdefs.Resource("transcode.Play", "player not started", nil)
	}
	if _, err := proc.Write(audio.Bytes()); err != nil {
		if exitErr := proc.ExitError(); exitErr != nil {
			err = exitErr
		}
		return errdefs.Resource("transcode.Play", "failed to write to player", err)
	}
	return nil
}

// Stop terminates the player. It is safe to call more than once.
func (p *Player) Stop() {
	p.mu.Lock()
	proc := p.proc
	p.proc = nil
	p.mu.Unlock()

	if proc != nil {
		proc.Stop()
	}
}
