// Package audio plays short notification cues. Playback is fire and
// forget: a missing player binary or a bad file never disturbs the
// monitoring loops.
package audio

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// Clip selects a segment of the sound file so one long file can hold
// several cues.
type Clip struct {
	File   string
	Offset time.Duration
	Length time.Duration
	// Volume scales playback, 1.0 is unchanged.
	Volume float64
}

// Player shells out to ffplay, or afplay on macOS when ffplay is absent.
type Player struct {
	enabled bool
	log     zerolog.Logger
}

func NewPlayer(enabled bool, log zerolog.Logger) *Player {
	return &Player{enabled: enabled, log: log}
}

// Play starts the clip in the background and returns immediately. Errors
// are logged and dropped.
func (p *Player) Play(c Clip) {
	if !p.enabled || c.File == "" {
		return
	}
	go func() {
		if err := p.run(c); err != nil {
			p.log.Debug().Err(err).Str("file", c.File).Msg("audio cue skipped")
		}
	}()
}

func (p *Player) run(c Clip) error {
	if path, err := exec.LookPath("ffplay"); err == nil {
		args := []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
		if c.Offset > 0 {
			args = append(args, "-ss", fmt.Sprintf("%.2f", c.Offset.Seconds()))
		}
		if c.Length > 0 {
			args = append(args, "-t", fmt.Sprintf("%.2f", c.Length.Seconds()))
		}
		if c.Volume > 0 && c.Volume != 1.0 {
			args = append(args, "-af", fmt.Sprintf("volume=%.2f", c.Volume))
		}
		args = append(args, c.File)
		return exec.Command(path, args...).Run()
	}
	if runtime.GOOS == "darwin" {
		if path, err := exec.LookPath("afplay"); err == nil {
			return exec.Command(path, c.File).Run()
		}
	}
	return fmt.Errorf("no audio player found")
}
