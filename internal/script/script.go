// Package script reads the dialog-script data that drives a show: scenes,
// each an ordered list of cues pointing at pre-rendered audio files.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// ErrSceneNotFound is returned when the requested scene does not exist or the
// script data cannot be read. Missing data is deliberately indistinguishable
// from a missing scene: both mean "nothing to play here".
var ErrSceneNotFound = errors.New("scene not found")

// Cue describes one playable unit within a scene. When the script provides a
// single audio file it is mirrored to both language slots.
type Cue struct {
	CueID       string   `json:"cueId"`
	AudioFileHi *string  `json:"audioFileHi"`
	AudioFileEn *string  `json:"audioFileEn"`
	Duration    *float64 `json:"duration"`
}

// Library serves cue manifests from a script file on disk. The file is read
// per lookup so script edits show up without a server restart.
type Library struct {
	path string
}

// NewLibrary returns a library backed by the script file at path.
func NewLibrary(path string) *Library {
	return &Library{path: path}
}

type scriptFile struct {
	Scenes map[string]scriptScene `json:"scenes"`
}

type scriptScene struct {
	Dialogs []scriptDialog `json:"dialogs"`
}

type scriptDialog struct {
	CueID     flexString `json:"cueId"`
	AudioFile *string    `json:"audioFile"`
	Duration  *float64   `json:"duration"`
}

// SceneCues returns the ordered cue descriptors for a scene, or
// ErrSceneNotFound.
func (l *Library) SceneCues(sceneID string) ([]Cue, error) {
	data, err := l.load()
	if err != nil {
		log.Warn().Err(err).Str("path", l.path).Msg("failed to load script data")
		return nil, ErrSceneNotFound
	}

	scene, ok := data.Scenes[sceneID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSceneNotFound, sceneID)
	}

	cues := make([]Cue, 0, len(scene.Dialogs))
	for _, d := range scene.Dialogs {
		cues = append(cues, Cue{
			CueID:       string(d.CueID),
			AudioFileHi: d.AudioFile,
			AudioFileEn: d.AudioFile,
			Duration:    d.Duration,
		})
	}
	return cues, nil
}

func (l *Library) load() (*scriptFile, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read script file: %w", err)
	}

	var data scriptFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse script file: %w", err)
	}
	if data.Scenes == nil {
		return nil, errors.New("script file has no scenes")
	}
	return &data, nil
}

// flexString accepts JSON strings and numbers; script authors use both for
// cue ids.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*f = flexString(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(num.String())
	return nil
}
