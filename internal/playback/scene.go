package playback

import (
	"encoding/json"
	"fmt"
)

// SceneID identifies a scene in the dialog script. Operator consoles send it
// as either a JSON string or a number, so it normalizes both to a string.
type SceneID string

func (s *SceneID) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = SceneID(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("scene must be a string or number: %w", err)
	}
	*s = SceneID(num.String())
	return nil
}
