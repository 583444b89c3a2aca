package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stagecue/stagecue/internal/playback"
)

func TestCommand_SceneAcceptsStringAndNumber(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`{"type":"CUE","scene":"2"}`), &cmd))
	require.NotNil(t, cmd.Scene)
	require.Equal(t, playback.SceneID("2"), *cmd.Scene)

	cmd = Command{}
	require.NoError(t, json.Unmarshal([]byte(`{"type":"CUE","scene":2}`), &cmd))
	require.NotNil(t, cmd.Scene)
	require.Equal(t, playback.SceneID("2"), *cmd.Scene)
}

func TestCommand_AnchorMediaTimePrefersAnchor(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal(
		[]byte(`{"type":"SEEK","mediaTimeSec":3,"anchor":{"mediaTimeSec":7}}`), &cmd))

	mt, ok := cmd.AnchorMediaTime()
	require.True(t, ok)
	require.Equal(t, 7.0, mt)
}

func TestCommand_AnchorMediaTimeFallsBackToTopLevel(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`{"type":"SEEK","mediaTimeSec":3}`), &cmd))

	mt, ok := cmd.AnchorMediaTime()
	require.True(t, ok)
	require.Equal(t, 3.0, mt)

	cmd = Command{}
	require.NoError(t, json.Unmarshal([]byte(`{"type":"SEEK"}`), &cmd))
	_, ok = cmd.AnchorMediaTime()
	require.False(t, ok)
}

func TestCommand_AnchorUpdateFallsBackToTopLevelMediaTime(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`{"type":"PAUSE","mediaTimeSec":18.5}`), &cmd))

	u := cmd.AnchorUpdate()
	require.NotNil(t, u)
	require.Equal(t, 18.5, u.MediaTimeSec)
	require.Nil(t, u.ServerTimeEpochMs)
}

func TestCommand_AnchorUpdateNilWithoutMediaTime(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal(
		[]byte(`{"type":"RESUME","anchor":{"serverTimeEpochMs":12345}}`), &cmd))
	require.Nil(t, cmd.AnchorUpdate())
}

func TestEvent_StateRoundTrip(t *testing.T) {
	st := playback.State{
		Scene:        "2",
		CueIndex:     5,
		PlaybackRate: 1.25,
		Anchor:       playback.Anchor{ServerTimeEpochMs: 1700000000000, MediaTimeSec: 12},
	}

	data, err := json.Marshal(StateOf(1700000000123, st))
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, EventTypeState, decoded.Type)
	require.Equal(t, int64(1700000000123), decoded.ServerTimeEpochMs)
	require.NotNil(t, decoded.State)
	require.Equal(t, st, *decoded.State)
}
