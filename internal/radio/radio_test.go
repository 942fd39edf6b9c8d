package radio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"projclock/internal/model"
)

func playlistServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveStreamURL(t *testing.T) {
	ok := playlistServer(t, "#EXTM3U\n\n#EXTINF:-1,SRF 2\nhttp://stream.example/aac\nhttp://backup.example/aac\n", http.StatusOK)
	empty := playlistServer(t, "#EXTM3U\n", http.StatusOK)
	gone := playlistServer(t, "", http.StatusNotFound)

	r, err := New([]model.Station{{ID: "x", URL: "http://direct"}}, "", &LogPlayer{})
	if err != nil {
		t.Fatal(err)
	}
	r.WithHTTPClient(ok.Client())
	ctx := context.Background()

	if got, err := r.ResolveStreamURL(ctx, "http://direct/mp3"); err != nil || got != "http://direct/mp3" {
		t.Errorf("direct URL = %q, %v", got, err)
	}
	if got, err := r.ResolveStreamURL(ctx, ok.URL+"/list.M3U"); err != nil || got != "http://stream.example/aac" {
		t.Errorf("playlist = %q, %v", got, err)
	}
	if _, err := r.ResolveStreamURL(ctx, empty.URL+"/list.m3u"); !errors.Is(err, ErrEmptyPlaylist) {
		t.Errorf("empty playlist = %v, want ErrEmptyPlaylist", err)
	}
	if _, err := r.ResolveStreamURL(ctx, gone.URL+"/list.m3u"); err == nil {
		t.Error("404 playlist should fail")
	}
}

func TestPlayStopAndStations(t *testing.T) {
	srv := playlistServer(t, "http://stream.example/a\n", http.StatusOK)
	stations := []model.Station{
		{ID: "a", Name: "A", URL: srv.URL + "/a.m3u"},
		{ID: "b", Name: "B", URL: "http://stream.example/b"},
	}
	if _, err := New(stations, "c", &LogPlayer{}); !errors.Is(err, ErrUnknownStation) {
		t.Errorf("unknown initial station = %v", err)
	}

	p := &LogPlayer{}
	r, err := New(stations, "a", p)
	if err != nil {
		t.Fatal(err)
	}
	r.WithHTTPClient(srv.Client())

	if err := r.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.Current() != "http://stream.example/a" || !r.Playing() {
		t.Errorf("playing %q", p.Current())
	}

	if _, err := r.SetStation("zz"); !errors.Is(err, ErrUnknownStation) {
		t.Errorf("SetStation(zz) = %v", err)
	}
	if !r.Playing() {
		t.Error("failed SetStation stopped playback")
	}
	if _, err := r.SetStation("b"); err != nil {
		t.Fatal(err)
	}
	if r.Playing() {
		t.Error("SetStation should stop playback")
	}

	if err := r.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	if was, err := r.Stop(); !was || err != nil {
		t.Errorf("Stop = %v, %v", was, err)
	}
	if was, _ := r.Stop(); was {
		t.Error("second Stop reported playback")
	}
	if st := r.Status(); st.Station.ID != "b" || len(st.Stations) != 2 || st.Playing {
		t.Errorf("status %+v", st)
	}
}

func TestWakeStopsAutomatically(t *testing.T) {
	p := &LogPlayer{}
	r, err := New([]model.Station{{ID: "b", URL: "http://stream.example/b"}}, "", p)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Wake(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if st := r.Status(); !st.Playing || st.StopsAt == nil {
		t.Fatalf("status after wake %+v", st)
	}
	deadline := time.Now().Add(2 * time.Second)
	for r.Playing() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.Playing() {
		t.Fatal("auto-stop did not stop playback")
	}
	if r.Status().StopsAt != nil {
		t.Error("stops_at still set after auto-stop")
	}
}

func TestManualStopCancelsAutoStop(t *testing.T) {
	p := &LogPlayer{}
	r, _ := New([]model.Station{{ID: "b", URL: "http://stream.example/b"}}, "", p)
	ctx := context.Background()
	if err := r.PlayFor(ctx, 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	r.Stop()
	// A manual play after the stop must outlive the old timer.
	if err := r.Play(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	if !r.Playing() {
		t.Error("stale auto-stop ended a later playback")
	}
}

// slowPlaylist serves a playlist only after release is called. started
// receives once per request.
func slowPlaylist(t *testing.T) (srv *httptest.Server, started chan struct{}, release func()) {
	t.Helper()
	started = make(chan struct{}, 4)
	gate := make(chan struct{})
	var once sync.Once
	release = func() { once.Do(func() { close(gate) }) }
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-gate
		fmt.Fprint(w, "http://stream.example/slow\n")
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(release)
	return srv, started, release
}

func TestStopDuringPlaylistFetch(t *testing.T) {
	srv, started, release := slowPlaylist(t)
	p := &LogPlayer{}
	r, err := New([]model.Station{{ID: "s", URL: srv.URL + "/s.m3u"}}, "", p)
	if err != nil {
		t.Fatal(err)
	}
	r.WithHTTPClient(srv.Client())

	played := make(chan error, 1)
	go func() { played <- r.PlayFor(context.Background(), time.Minute) }()
	<-started

	done := make(chan struct{})
	go func() {
		r.Status()
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Status/Stop blocked while the playlist was being fetched")
	}

	release()
	if err := <-played; err != nil {
		t.Fatalf("PlayFor: %v", err)
	}
	if p.Current() != "http://stream.example/slow" {
		t.Errorf("playing %q", p.Current())
	}
	r.Stop()
}

func TestStationChangeDuringPlaylistFetch(t *testing.T) {
	srv, started, release := slowPlaylist(t)
	p := &LogPlayer{}
	r, err := New([]model.Station{
		{ID: "s", URL: srv.URL + "/s.m3u"},
		{ID: "b", URL: "http://stream.example/b"},
	}, "s", p)
	if err != nil {
		t.Fatal(err)
	}
	r.WithHTTPClient(srv.Client())

	played := make(chan error, 1)
	go func() { played <- r.Play(context.Background()) }()
	<-started
	if _, err := r.SetStation("b"); err != nil {
		t.Fatal(err)
	}
	release()

	if err := <-played; !errors.Is(err, ErrStationChanged) {
		t.Errorf("Play = %v, want ErrStationChanged", err)
	}
	if r.Playing() {
		t.Errorf("playing %q after the station changed", p.Current())
	}
}
