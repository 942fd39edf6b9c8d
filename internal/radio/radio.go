// Package radio keeps the station list and drives a Player. It has no media
// backend of its own; the log player only records what would be played.
package radio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	appLog "projclock/internal/log"
	"projclock/internal/model"
)

var (
	ErrUnknownStation = errors.New("radio: unknown station")
	ErrEmptyPlaylist  = errors.New("radio: playlist has no stream")
	ErrStationChanged = errors.New("radio: station changed before playback started")
)

// Player plays one stream at a time.
type Player interface {
	Play(ctx context.Context, streamURL string) error
	Stop() error
	Playing() bool
}

// LogPlayer is a Player that only logs.
type LogPlayer struct {
	mu      sync.Mutex
	current string
}

func (p *LogPlayer) Play(_ context.Context, streamURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = streamURL
	appLog.Info("player: play", "url", streamURL)
	return nil
}

func (p *LogPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != "" {
		appLog.Info("player: stop", "url", p.current)
	}
	p.current = ""
	return nil
}

func (p *LogPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != ""
}

// Current returns the stream being played, or "".
func (p *LogPlayer) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Status is what the web UI shows about playback.
type Status struct {
	Station  model.Station `json:"station"`
	Playing  bool          `json:"playing"`
	StopsAt  *time.Time    `json:"stops_at,omitempty"`
	Stations []string      `json:"stations"`
}

// Radio selects stations and starts or stops playback.
type Radio struct {
	player Player
	client *http.Client

	mu       sync.Mutex
	stations []model.Station
	current  model.Station
	autoStop *time.Timer
	stopsAt  time.Time
	plays    uint64
}

// New returns a Radio tuned to the station with ID initial, or to the first
// station if initial is empty.
func New(stations []model.Station, initial string, player Player) (*Radio, error) {
	if len(stations) == 0 {
		return nil, errors.New("radio: no stations")
	}
	r := &Radio{
		player:   player,
		client:   &http.Client{Timeout: 10 * time.Second},
		stations: append([]model.Station(nil), stations...),
		current:  stations[0],
	}
	if initial != "" {
		st, ok := r.lookup(initial)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStation, initial)
		}
		r.current = st
	}
	return r, nil
}

// WithHTTPClient replaces the client used to fetch playlists.
func (r *Radio) WithHTTPClient(c *http.Client) *Radio {
	r.client = c
	return r
}

func (r *Radio) lookup(id string) (model.Station, bool) {
	for _, s := range r.stations {
		if s.ID == id {
			return s, true
		}
	}
	return model.Station{}, false
}

// Stations returns the station list in configuration order.
func (r *Radio) Stations() []model.Station {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Station(nil), r.stations...)
}

// Station returns the selected station.
func (r *Radio) Station() model.Station {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// SetStation selects a station. Playback is stopped; it does not resume on
// the new station by itself.
func (r *Radio) SetStation(id string) (model.Station, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.lookup(id)
	if !ok {
		return model.Station{}, fmt.Errorf("%w: %q", ErrUnknownStation, id)
	}
	if err := r.stopLocked(); err != nil {
		return model.Station{}, err
	}
	r.current = st
	appLog.Info("radio: station selected", "id", st.ID, "name", st.Name)
	return st, nil
}

// Play starts the selected station. It is a no-op while already playing.
func (r *Radio) Play(ctx context.Context) error {
	return r.PlayFor(ctx, 0)
}

// PlayFor starts the selected station and stops it again after d. A zero d
// plays until Stop.
//
// The playlist is fetched without holding the lock, so Stop and Status stay
// responsive. If the station is changed meanwhile, PlayFor returns
// ErrStationChanged and plays nothing.
func (r *Radio) PlayFor(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	if r.player.Playing() {
		r.mu.Unlock()
		return nil
	}
	st := r.current
	r.mu.Unlock()

	url, err := r.ResolveStreamURL(ctx, st.URL)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.player.Playing() {
		return nil
	}
	if r.current.ID != st.ID {
		return fmt.Errorf("%w: %s -> %s", ErrStationChanged, st.ID, r.current.ID)
	}
	if err := r.player.Play(ctx, url); err != nil {
		return fmt.Errorf("radio: play %s: %w", r.current.ID, err)
	}
	if d > 0 {
		r.stopsAt = time.Now().Add(d)
		r.plays++
		play := r.plays
		r.autoStop = time.AfterFunc(d, func() { r.expire(play) })
	}
	return nil
}

func (r *Radio) expire(play uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// A Stop or a new PlayFor may have come first.
	if r.autoStop == nil || r.plays != play {
		return
	}
	appLog.Info("radio: auto-stop", "station", r.current.ID)
	if err := r.stopLocked(); err != nil {
		appLog.Error("radio: auto-stop failed", err)
	}
}

// Wake is what an alarm does: play the selected station for d.
func (r *Radio) Wake(ctx context.Context, d time.Duration) error {
	appLog.Info("radio: alarm", "station", r.Station().ID, "auto_stop", d.String())
	return r.PlayFor(ctx, d)
}

// Stop stops playback and reports whether anything was playing.
func (r *Radio) Stop() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	was := r.player.Playing()
	return was, r.stopLocked()
}

func (r *Radio) stopLocked() error {
	if r.autoStop != nil {
		r.autoStop.Stop()
		r.autoStop = nil
		r.stopsAt = time.Time{}
	}
	if !r.player.Playing() {
		return nil
	}
	return r.player.Stop()
}

// Playing reports whether the player is running.
func (r *Radio) Playing() bool {
	return r.player.Playing()
}

// Status returns a snapshot for the web UI.
func (r *Radio) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{Station: r.current, Playing: r.player.Playing()}
	if !r.stopsAt.IsZero() {
		t := r.stopsAt
		st.StopsAt = &t
	}
	for _, s := range r.stations {
		st.Stations = append(st.Stations, s.ID)
	}
	return st
}

// ResolveStreamURL returns url unchanged unless it names an .m3u playlist, in
// which case the playlist is fetched and its first entry returned.
func (r *Radio) ResolveStreamURL(ctx context.Context, url string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(url), ".m3u") {
		return url, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("radio: playlist request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("radio: fetch playlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("radio: fetch playlist: %s", resp.Status)
	}
	stream, err := firstEntry(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	appLog.Debug("radio: playlist resolved", "playlist", url, "stream", stream)
	return stream, nil
}

// firstEntry returns the first non-comment line of an M3U playlist.
func firstEntry(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		l := strings.TrimSpace(sc.Text())
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		return l, nil
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("radio: read playlist: %w", err)
	}
	return "", ErrEmptyPlaylist
}
