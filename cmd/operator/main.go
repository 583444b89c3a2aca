// Command operator sends show-control commands to the playback server from
// the terminal: cue jumps, pause/resume, seeks, and rate changes. Cues are
// stamped with the configured anchor lead so every listener starts together.
//
// Usage:
//
//	operator [-url ws://host:5174/ws] [-config stagecue.yaml] <command>
//
//	cue <scene> <cueIndex> <mediaTimeSec> [rate]
//	pause [mediaTimeSec]
//	resume [mediaTimeSec]
//	seek <mediaTimeSec>
//	rate <playbackRate>
package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stagecue/stagecue/internal/client"
	"github.com/stagecue/stagecue/internal/config"
	"github.com/stagecue/stagecue/internal/playback"
)

func main() {
	url := flag.String("url", "ws://localhost:5174/ws", "playback server WebSocket URL")
	configPath := flag.String("config", "stagecue.yaml", "path to config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	args := flag.Args()
	if len(args) == 0 {
		log.Fatal().Msg("missing command: cue, pause, resume, seek, or rate")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lead := time.Duration(cfg.Sync.AnchorLeadMs) * time.Millisecond
	op, err := client.DialOperator(ctx, *url, clockwork.NewRealClock(), lead)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer op.Close()

	if err := run(op, args); err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("command failed")
	}
	log.Info().Str("command", args[0]).Msg("command sent")
}

func run(op *client.Operator, args []string) error {
	switch args[0] {
	case "cue":
		if len(args) < 4 {
			log.Fatal().Msg("usage: cue <scene> <cueIndex> <mediaTimeSec> [rate]")
		}
		cueIndex, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		mediaTime, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return err
		}
		var rate *float64
		if len(args) > 4 {
			r, err := strconv.ParseFloat(args[4], 64)
			if err != nil {
				return err
			}
			rate = &r
		}
		return op.Cue(playback.SceneID(args[1]), cueIndex, mediaTime, rate)

	case "pause":
		return op.Pause(optionalFloat(args, 1))

	case "resume":
		return op.Resume(optionalFloat(args, 1))

	case "seek":
		if len(args) < 2 {
			log.Fatal().Msg("usage: seek <mediaTimeSec>")
		}
		mediaTime, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return err
		}
		return op.Seek(mediaTime)

	case "rate":
		if len(args) < 2 {
			log.Fatal().Msg("usage: rate <playbackRate>")
		}
		rate, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return err
		}
		return op.Rate(rate)

	default:
		log.Fatal().Str("command", args[0]).Msg("unknown command")
		return nil
	}
}

func optionalFloat(args []string, i int) *float64 {
	if len(args) <= i {
		return nil
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		log.Fatal().Err(err).Str("value", args[i]).Msg("invalid media time")
	}
	return &v
}
