package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/stagecue/stagecue/internal/playback"
	"github.com/stagecue/stagecue/internal/protocol"
	"github.com/stagecue/stagecue/internal/script"
)

// captureSink records broadcast events in emission order.
type captureSink struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (c *captureSink) Publish(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) take() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.events
	c.events = nil
	return events
}

func types(events []protocol.Event) []protocol.EventType {
	out := make([]protocol.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *captureSink, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sink := &captureSink{}
	store := playback.NewStore(clock)
	library := script.NewLibrary(filepath.Join(t.TempDir(), "missing.json"))
	svc := NewService(DefaultConfig(), store, library, clock, sink)
	return svc, sink, clock
}

func testConn() *Connection {
	return &Connection{ID: "test", Send: make(chan []byte, 16)}
}

// requireActionSequence checks the ordering guarantee: granular events first,
// exactly one STATE, and the STATE is last.
func requireActionSequence(t *testing.T, events []protocol.Event, granular ...protocol.EventType) {
	t.Helper()
	require.Len(t, events, len(granular)+1)
	for i, want := range granular {
		require.Equal(t, want, events[i].Type)
	}
	stateCount := 0
	for _, ev := range events {
		if ev.Type == protocol.EventTypeState {
			stateCount++
		}
	}
	require.Equal(t, 1, stateCount)
	require.Equal(t, protocol.EventTypeState, events[len(events)-1].Type)
}

func TestDispatch_CueWithSceneChange(t *testing.T) {
	svc, sink, clock := newTestService(t)

	lead := clock.Now().Add(250 * time.Millisecond).UnixMilli()
	raw := []byte(`{"type":"CUE","cueIndex":5,"scene":"2","anchor":{"mediaTimeSec":12.0,"serverTimeEpochMs":` +
		marshalInt(lead) + `}}`)
	svc.dispatch(testConn(), raw)

	events := sink.take()
	requireActionSequence(t, events,
		protocol.EventTypeSceneLoad, protocol.EventTypeCue)

	state := svc.store.Snapshot()
	require.Equal(t, playback.SceneID("2"), state.Scene)
	require.Equal(t, 5, state.CueIndex)
	require.False(t, state.IsPaused)
	require.Equal(t, 12.0, state.Anchor.MediaTimeSec)
	// Cue anchors carry the operator's lead time, so the client timestamp
	// survives verbatim.
	require.Equal(t, lead, state.Anchor.ServerTimeEpochMs)
}

func TestDispatch_CueSameSceneSkipsSceneLoad(t *testing.T) {
	svc, sink, _ := newTestService(t)

	svc.dispatch(testConn(), []byte(`{"type":"CUE","cueIndex":1,"scene":"1","anchor":{"mediaTimeSec":0}}`))

	requireActionSequence(t, sink.take(), protocol.EventTypeCue)
}

func TestDispatch_CueMissingRequiredFieldsIgnored(t *testing.T) {
	svc, sink, _ := newTestService(t)
	before := svc.store.Snapshot()

	svc.dispatch(testConn(), []byte(`{"type":"CUE","cueIndex":5}`))
	svc.dispatch(testConn(), []byte(`{"type":"CUE","anchor":{"mediaTimeSec":1}}`))

	require.Empty(t, sink.take())
	require.Equal(t, before, svc.store.Snapshot())
}

func TestDispatch_SeekAcceptsTopLevelMediaTime(t *testing.T) {
	svc, sink, clock := newTestService(t)

	svc.dispatch(testConn(), []byte(`{"type":"SEEK","mediaTimeSec":45.5}`))

	events := sink.take()
	requireActionSequence(t, events, protocol.EventTypeSeek)
	require.Equal(t, 45.5, *events[0].MediaTimeSec)

	state := svc.store.Snapshot()
	require.Equal(t, 45.5, state.Anchor.MediaTimeSec)
	require.Equal(t, clock.Now().UnixMilli(), state.Anchor.ServerTimeEpochMs)
}

func TestDispatch_SeekNeverTrustsClientTimestamp(t *testing.T) {
	svc, sink, clock := newTestService(t)

	svc.dispatch(testConn(), []byte(`{"type":"SEEK","anchor":{"mediaTimeSec":9,"serverTimeEpochMs":1}}`))

	requireActionSequence(t, sink.take(), protocol.EventTypeSeek)
	require.Equal(t, clock.Now().UnixMilli(), svc.store.Snapshot().Anchor.ServerTimeEpochMs)
}

func TestDispatch_Rate(t *testing.T) {
	svc, sink, _ := newTestService(t)

	svc.dispatch(testConn(), []byte(`{"type":"RATE","playbackRate":1.25}`))

	events := sink.take()
	requireActionSequence(t, events, protocol.EventTypeRate)
	require.Equal(t, 1.25, *events[0].PlaybackRate)
	require.Equal(t, 1.25, svc.store.Snapshot().PlaybackRate)
}

func TestDispatch_RateWithoutValueIgnored(t *testing.T) {
	svc, sink, _ := newTestService(t)

	svc.dispatch(testConn(), []byte(`{"type":"RATE"}`))

	require.Empty(t, sink.take())
	require.Equal(t, 1.0, svc.store.Snapshot().PlaybackRate)
}

func TestDispatch_RateIgnoresTopLevelMediaTime(t *testing.T) {
	svc, sink, clock := newTestService(t)

	svc.dispatch(testConn(), []byte(`{"type":"SEEK","mediaTimeSec":30.2}`))
	sink.take()
	clock.Advance(3 * time.Second)

	// A bare top-level mediaTimeSec on RATE must not seek; only an explicit
	// anchor payload may reposition during a rate change.
	svc.dispatch(testConn(), []byte(`{"type":"RATE","playbackRate":0.5,"mediaTimeSec":99}`))

	requireActionSequence(t, sink.take(), protocol.EventTypeRate)

	state := svc.store.Snapshot()
	require.Equal(t, 0.5, state.PlaybackRate)
	require.Equal(t, 30.2, state.Anchor.MediaTimeSec)
	require.Equal(t, clock.Now().UnixMilli(), state.Anchor.ServerTimeEpochMs)
}

func TestDispatch_RateWithAnchorRepositions(t *testing.T) {
	svc, sink, clock := newTestService(t)

	svc.dispatch(testConn(), []byte(`{"type":"RATE","playbackRate":2.0,"anchor":{"mediaTimeSec":7.5}}`))

	requireActionSequence(t, sink.take(), protocol.EventTypeRate)

	state := svc.store.Snapshot()
	require.Equal(t, 7.5, state.Anchor.MediaTimeSec)
	require.Equal(t, clock.Now().UnixMilli(), state.Anchor.ServerTimeEpochMs)
}

func TestDispatch_AnchorlessResumePreservesMediaTime(t *testing.T) {
	svc, sink, clock := newTestService(t)

	svc.dispatch(testConn(), []byte(`{"type":"SEEK","mediaTimeSec":30.2}`))
	sink.take()
	clock.Advance(3 * time.Second)

	svc.dispatch(testConn(), []byte(`{"type":"RESUME"}`))

	requireActionSequence(t, sink.take(), protocol.EventTypeResume)

	state := svc.store.Snapshot()
	require.False(t, state.IsPaused)
	require.Equal(t, 30.2, state.Anchor.MediaTimeSec)
	require.Equal(t, clock.Now().UnixMilli(), state.Anchor.ServerTimeEpochMs)
}

func TestDispatch_PauseWithMediaTime(t *testing.T) {
	svc, sink, _ := newTestService(t)

	svc.dispatch(testConn(), []byte(`{"type":"PAUSE","mediaTimeSec":18.5}`))

	requireActionSequence(t, sink.take(), protocol.EventTypePause)

	state := svc.store.Snapshot()
	require.True(t, state.IsPaused)
	require.Equal(t, 18.5, state.Anchor.MediaTimeSec)
}

func TestDispatch_PingRepliesToSenderOnly(t *testing.T) {
	svc, sink, clock := newTestService(t)
	conn := testConn()

	svc.dispatch(conn, []byte(`{"type":"PING","t0":123}`))

	require.Empty(t, sink.take())
	var ev protocol.Event
	require.NoError(t, json.Unmarshal(<-conn.Send, &ev))
	require.Equal(t, protocol.EventTypePing, ev.Type)
	require.Equal(t, clock.Now().UnixMilli(), ev.ServerTimeEpochMs)
}

func TestDispatch_HeartbeatEcho(t *testing.T) {
	svc, sink, _ := newTestService(t)
	conn := testConn()

	svc.dispatch(conn, []byte(`{"type":"HEARTBEAT"}`))

	require.Empty(t, sink.take())
	var ev protocol.Event
	require.NoError(t, json.Unmarshal(<-conn.Send, &ev))
	require.Equal(t, protocol.EventTypeHeartbeat, ev.Type)
}

func TestDispatch_MalformedAndUnknownIgnored(t *testing.T) {
	svc, sink, _ := newTestService(t)
	before := svc.store.Snapshot()

	svc.dispatch(testConn(), []byte(`not json at all`))
	svc.dispatch(testConn(), []byte(`{"type":"TELEPORT","cueIndex":9}`))
	svc.dispatch(testConn(), []byte(`{}`))

	require.Empty(t, sink.take())
	require.Equal(t, before, svc.store.Snapshot())
}

func TestHandleUpdate_GranularEventsThenState(t *testing.T) {
	svc, sink, clock := newTestService(t)

	body := `{"scene":"3","cueIndex":2,"isPaused":false,"playbackRate":1.25,` +
		`"anchor":{"mediaTimeSec":6.5,"serverTimeEpochMs":123}}`
	req := httptest.NewRequest(http.MethodPost, "/update", strings.NewReader(body))
	rec := httptest.NewRecorder()
	svc.HandleUpdate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true}`, rec.Body.String())

	events := sink.take()
	requireActionSequence(t, events,
		protocol.EventTypeSceneLoad,
		protocol.EventTypeCue,
		protocol.EventTypeResume,
		protocol.EventTypeRate,
		protocol.EventTypeSeek,
	)

	state := svc.store.Snapshot()
	require.Equal(t, playback.SceneID("3"), state.Scene)
	require.Equal(t, 2, state.CueIndex)
	require.False(t, state.IsPaused)
	require.Equal(t, 1.25, state.PlaybackRate)
	require.Equal(t, 6.5, state.Anchor.MediaTimeSec)
	// The stateless path never trusts a client timestamp.
	require.Equal(t, clock.Now().UnixMilli(), state.Anchor.ServerTimeEpochMs)
}

func TestHandleUpdate_EmptyBodyStillBroadcastsState(t *testing.T) {
	svc, sink, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/update", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	svc.HandleUpdate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	requireActionSequence(t, sink.take())
}

func TestHandleUpdate_RejectsInvalidJSON(t *testing.T) {
	svc, sink, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/update", strings.NewReader(`{`))
	rec := httptest.NewRecorder()
	svc.HandleUpdate(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, sink.take())
}

func TestHandleCurrentState(t *testing.T) {
	svc, _, clock := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/current", nil)
	rec := httptest.NewRecorder()
	svc.HandleCurrentState(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var state playback.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Equal(t, playback.SceneID("1"), state.Scene)
	require.True(t, state.IsPaused)
	require.Equal(t, clock.Now().UnixMilli(), state.Anchor.ServerTimeEpochMs)
}

func TestHandleManifest(t *testing.T) {
	clock := clockwork.NewFakeClock()
	path := filepath.Join(t.TempDir(), "playData.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"scenes":{"1":{"dialogs":[{"cueId":1,"audioFile":"a.mp3","duration":2.5}]}}}`), 0o644))
	svc := NewService(DefaultConfig(), playback.NewStore(clock), script.NewLibrary(path), clock, nil)

	rec := httptest.NewRecorder()
	svc.HandleManifest(rec, httptest.NewRequest(http.MethodGet, "/manifest/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cues []script.Cue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cues))
	require.Len(t, cues, 1)
	require.Equal(t, "1", cues[0].CueID)

	rec = httptest.NewRecorder()
	svc.HandleManifest(rec, httptest.NewRequest(http.MethodGet, "/manifest/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"Scene not found"}`, rec.Body.String())
}

func TestHandleManifest_MissingScriptDataIsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec := httptest.NewRecorder()
	svc.HandleManifest(rec, httptest.NewRequest(http.MethodGet, "/manifest/1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func marshalInt(v int64) string {
	data, _ := json.Marshal(v)
	return string(data)
}
