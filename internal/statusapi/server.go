// Package statusapi serves adapter status, note state and the last frame
// over HTTP, and exposes the caller-triggered actions: cycling the MIDI
// device, connecting to the bus and changing render controls.
package statusapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/bep/debounce"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/chase3718/notelight/internal/clock"
	"github.com/chase3718/notelight/internal/colormap"
	"github.com/chase3718/notelight/internal/link"
	"github.com/chase3718/notelight/internal/notes"
	"github.com/chase3718/notelight/internal/render"
)

// MIDI is the local capture adapter.
type MIDI interface {
	Next() error
	Device() string
	Status() *link.Status
}

// Peer is the bus adapter.
type Peer interface {
	Connect() error
	Close() error
	Status() *link.Status
}

// Notes is the note state.
type Notes interface {
	LocalID() notes.ParticipantID
	All() map[notes.ParticipantID][]notes.Note
}

// Frames supplies the last rendered frame.
type Frames interface {
	LastFrame() render.Frame
}

// Deps are the components the server reports on. MIDI and Peer may be nil.
type Deps struct {
	MIDI     MIDI
	Peer     Peer
	Notes    Notes
	Controls *render.Controls
	Frames   Frames
}

// Options tune the server.
type Options struct {
	CORSOrigins []string
	// Debounce collapses bursts of device-cycle requests.
	Debounce time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Server is the HTTP surface.
type Server struct {
	deps     Deps
	clock    clock.Clock
	log      *slog.Logger
	handler  http.Handler
	debounce func(func())
	srv      *http.Server
}

// New builds the router.
func New(deps Deps, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &Server{deps: deps, clock: opts.Clock, log: opts.Logger}
	if opts.Debounce > 0 {
		s.debounce = debounce.New(opts.Debounce)
	} else {
		s.debounce = func(f func()) { go f() }
	}

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/notes", s.handleNotes).Methods(http.MethodGet)
	router.HandleFunc("/frame", s.handleFrame).Methods(http.MethodGet)
	router.HandleFunc("/midi/next", s.handleMIDINext).Methods(http.MethodPost)
	router.HandleFunc("/peer/connect", s.handlePeerConnect).Methods(http.MethodPost)
	router.HandleFunc("/peer/disconnect", s.handlePeerDisconnect).Methods(http.MethodPost)
	controls := router.PathPrefix("/controls").Subrouter()
	controls.HandleFunc("/scheme", s.handleScheme).Methods(http.MethodPost)
	controls.HandleFunc("/mode/{mode}", s.handleMode).Methods(http.MethodPost)
	controls.HandleFunc("/tuning", s.handleTuning).Methods(http.MethodPost)
	controls.HandleFunc("/progression", s.handleProgression).Methods(http.MethodPost)
	controls.HandleFunc("/play", s.handlePlay).Methods(http.MethodPost)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(router)
	s.srv = &http.Server{Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on ln until Close.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("status: listening", "addr", ln.Addr().String())
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the listener.
func (s *Server) Close() error {
	return s.srv.Close()
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Participant notes.ParticipantID `json:"participant"`
	MIDI        *MIDIStatus         `json:"midi,omitempty"`
	MQTT        *link.Report        `json:"mqtt,omitempty"`
	Controls    render.State        `json:"controls"`
}

// MIDIStatus adds the open device to the link report.
type MIDIStatus struct {
	link.Report
	Device string `json:"device,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Participant: s.deps.Notes.LocalID(),
		Controls:    s.deps.Controls.State(),
	}
	if s.deps.MIDI != nil {
		resp.MIDI = &MIDIStatus{Report: s.deps.MIDI.Status().Report(), Device: s.deps.MIDI.Device()}
	}
	if s.deps.Peer != nil {
		rep := s.deps.Peer.Status().Report()
		resp.MQTT = &rep
	}
	writeJSON(w, http.StatusOK, resp)
}

// Participant is one entry of GET /notes.
type Participant struct {
	ID    notes.ParticipantID `json:"id"`
	Local bool                `json:"local"`
	Notes []int               `json:"notes"`
	Names []string            `json:"names"`
}

func (s *Server) handleNotes(w http.ResponseWriter, _ *http.Request) {
	local := s.deps.Notes.LocalID()
	all := s.deps.Notes.All()
	out := make([]Participant, 0, len(all))
	for id, ns := range all {
		p := Participant{ID: id, Local: id == local, Notes: make([]int, len(ns)), Names: make([]string, len(ns))}
		for i, n := range ns {
			p.Notes[i] = int(n)
			p.Names[i] = n.String()
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Frames.LastFrame())
}

func (s *Server) handleMIDINext(w http.ResponseWriter, _ *http.Request) {
	if s.deps.MIDI == nil {
		writeError(w, http.StatusNotFound, errors.New("midi input disabled"))
		return
	}
	s.debounce(func() {
		if err := s.deps.MIDI.Next(); err != nil {
			s.log.Warn("status: midi reselect failed", "err", err)
		}
	})
	writeJSON(w, http.StatusAccepted, s.deps.MIDI.Status().Report())
}

func (s *Server) handlePeerConnect(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Peer == nil {
		writeError(w, http.StatusNotFound, errors.New("mqtt disabled"))
		return
	}
	if err := s.deps.Peer.Connect(); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Peer.Status().Report())
}

func (s *Server) handlePeerDisconnect(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Peer == nil {
		writeError(w, http.StatusNotFound, errors.New("mqtt disabled"))
		return
	}
	if err := s.deps.Peer.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Peer.Status().Report())
}

func (s *Server) handleScheme(w http.ResponseWriter, _ *http.Request) {
	scheme := s.deps.Controls.CycleScheme()
	s.log.Info("status: scheme changed", "scheme", scheme)
	writeJSON(w, http.StatusOK, s.deps.Controls.State())
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	mode, err := colormap.ParseMode(mux.Vars(r)["mode"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.Controls.SetMode(mode)
	s.log.Info("status: mode changed", "mode", mode)
	writeJSON(w, http.StatusOK, s.deps.Controls.State())
}

func (s *Server) handleTuning(w http.ResponseWriter, _ *http.Request) {
	name, err := s.deps.Controls.CycleTuning()
	if errors.Is(err, render.ErrNotFretted) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.log.Info("status: tuning changed", "tuning", name)
	writeJSON(w, http.StatusOK, s.deps.Controls.State())
}

func (s *Server) handleProgression(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Controls.NextProgression()
	s.log.Info("status: progression changed", "progression", st.Progression)
	writeJSON(w, http.StatusOK, s.deps.Controls.State())
}

func (s *Server) handlePlay(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Controls.TogglePlay(s.clock.Now())
	s.log.Info("status: progression playback", "playing", st.Playing)
	writeJSON(w, http.StatusOK, s.deps.Controls.State())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
