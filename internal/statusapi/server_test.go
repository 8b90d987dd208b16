package statusapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/notelight/internal/colormap"
	"github.com/chase3718/notelight/internal/link"
	"github.com/chase3718/notelight/internal/notes"
	"github.com/chase3718/notelight/internal/progression"
	"github.com/chase3718/notelight/internal/render"
	"github.com/chase3718/notelight/internal/topology"
)

type fakeMIDI struct {
	nexts  atomic.Int32
	status *link.Status
}

func (m *fakeMIDI) Next() error {
	m.nexts.Add(1)
	return nil
}

func (m *fakeMIDI) Device() string       { return "Launchkey 49" }
func (m *fakeMIDI) Status() *link.Status { return m.status }

type fakePeer struct {
	connectErr error
	status     *link.Status
}

func (p *fakePeer) Connect() error {
	if err := p.status.Begin("test"); err != nil {
		return err
	}
	if p.connectErr != nil {
		p.status.Fail("test", p.connectErr)
		return p.connectErr
	}
	p.status.Succeed("test")
	return nil
}

func (p *fakePeer) Close() error {
	p.status.Drop("closed", nil)
	return nil
}

func (p *fakePeer) Status() *link.Status { return p.status }

type fakeFrames struct{ frame render.Frame }

func (f fakeFrames) LastFrame() render.Frame { return f.frame }

type fixture struct {
	midi     *fakeMIDI
	peer     *fakePeer
	agg      *notes.Aggregator
	controls *render.Controls
	server   *Server
}

func newFixture(t *testing.T, kb bool) *fixture {
	t.Helper()
	var table *topology.Table
	var err error
	tuning := ""
	if kb {
		table, err = topology.Keyboard(21, 88)
	} else {
		var open []int
		open, err = topology.Tuning(topology.StandardTuning)
		require.NoError(t, err)
		table, err = topology.Build(open, 25)
		tuning = topology.StandardTuning
	}
	require.NoError(t, err)

	f := &fixture{
		midi:     &fakeMIDI{status: link.NewStatus("midi", nil, nil)},
		peer:     &fakePeer{status: link.NewStatus("mqtt", nil, nil)},
		agg:      notes.NewAggregator("guitar_0badf00d"),
		controls: render.NewControls(table, render.Settings{Tuning: tuning}, progression.NewPlayer(progression.Builtin(), 0)),
	}
	frame := render.Frame{Kind: topology.Fretted, Strings: 6, Frets: 25, Pixels: []colormap.RGB{{R: 1, G: 2, B: 3}}}
	f.server = New(Deps{
		MIDI:     f.midi,
		Peer:     f.peer,
		Notes:    f.agg,
		Controls: f.controls,
		Frames:   fakeFrames{frame: frame},
	}, Options{Debounce: 20 * time.Millisecond})
	return f
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestStatus(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "guitar_0badf00d", body["participant"])
	midi := body["midi"].(map[string]any)
	assert.Equal(t, "disconnected", midi["state"])
	assert.Equal(t, "Launchkey 49", midi["device"])
	controls := body["controls"].(map[string]any)
	assert.Equal(t, "chromatic", controls["scheme"])
	assert.Equal(t, "E Standard", controls["tuning"])
}

func TestNotesListsParticipantsSorted(t *testing.T) {
	f := newFixture(t, false)
	f.agg.AddLocal(64)
	f.agg.ReplaceRemote("bass_1", []notes.Note{40, 28})

	rec := f.do(t, http.MethodGet, "/notes")
	require.Equal(t, http.StatusOK, rec.Code)
	ps := decode[[]Participant](t, rec)
	require.Len(t, ps, 2)
	assert.Equal(t, notes.ParticipantID("bass_1"), ps[0].ID)
	assert.Equal(t, []int{28, 40}, ps[0].Notes)
	assert.True(t, ps[1].Local)
	assert.Equal(t, []string{"E4"}, ps[1].Names)
}

func TestFrame(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/frame")
	require.Equal(t, http.StatusOK, rec.Code)
	frame := decode[render.Frame](t, rec)
	assert.Equal(t, 6, frame.Strings)
	assert.Equal(t, []colormap.RGB{{R: 1, G: 2, B: 3}}, frame.Pixels)
}

func TestMIDINextIsDebounced(t *testing.T) {
	f := newFixture(t, false)
	for i := 0; i < 5; i++ {
		rec := f.do(t, http.MethodPost, "/midi/next")
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	require.Eventually(t, func() bool { return f.midi.nexts.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), f.midi.nexts.Load())
}

func TestPeerConnectAndDisconnect(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/peer/connect")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", decode[map[string]any](t, rec)["state"])

	rec = f.do(t, http.MethodPost, "/peer/disconnect")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disconnected", decode[map[string]any](t, rec)["state"])
}

func TestPeerConnectFailure(t *testing.T) {
	f := newFixture(t, false)
	f.peer.connectErr = errors.New("connection refused")
	rec := f.do(t, http.MethodPost, "/peer/connect")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "refused")
}

func TestNilAdaptersAreNotFound(t *testing.T) {
	f := newFixture(t, false)
	s := New(Deps{Notes: f.agg, Controls: f.controls, Frames: fakeFrames{}}, Options{})
	for _, path := range []string{"/midi/next", "/peer/connect", "/peer/disconnect"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	body := decode[map[string]any](t, rec)
	assert.NotContains(t, body, "midi")
	assert.NotContains(t, body, "mqtt")
}

func TestControls(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/controls/scheme")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, colormap.Harmonic, decode[render.State](t, rec).Scheme)

	rec = f.do(t, http.MethodPost, "/controls/mode/performance")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, colormap.Performance, decode[render.State](t, rec).Mode)

	rec = f.do(t, http.MethodPost, "/controls/mode/disco")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/controls/tuning")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "D Standard", decode[render.State](t, rec).Tuning)

	rec = f.do(t, http.MethodPost, "/controls/progression")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Blues in A", decode[render.State](t, rec).Progression.Progression)

	rec = f.do(t, http.MethodPost, "/controls/play")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[render.State](t, rec).Progression.Playing)
}

func TestKeyboardTuningConflict(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/controls/tuning")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWrongMethod(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/status")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodOptions, "/controls/scheme", nil)
	req.Header.Set("Origin", "http://display.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeAndClose(t *testing.T) {
	f := newFixture(t, false)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.server.Close())
	require.NoError(t, <-done)
}
