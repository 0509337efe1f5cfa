package lichess

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "gmwatch/pkg/logx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, RatePerSec: 100}, logx.Nop())
}

func TestCurrentGameParsesActiveGame(t *testing.T) {
	var gotPath, gotAccept string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "g1",
			"speed": "Blitz",
			"opponent": {"username": "bob"},
			"players": {"white": {"user": {"name": "Alice"}}}
		}`))
	})

	st, err := c.CurrentGame(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("CurrentGame: %v", err)
	}
	if gotPath != "/api/user/alice/current-game" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAccept != "application/json" {
		t.Fatalf("unexpected Accept header: %q", gotAccept)
	}
	if st.GameID != "g1" || st.Opponent != "bob" || st.Speed != "blitz" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Color != "White" {
		t.Fatalf("Color = %s, want White", st.Color)
	}
	if st.Link != c.BaseURL()+"/g1" {
		t.Fatalf("unexpected link: %s", st.Link)
	}
}

func TestCurrentGameBlackWhenNotWhiteSide(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "g2",
			"speed": "bullet",
			"opponent": {"username": "alice"},
			"players": {"white": {"user": {"name": "alice"}}}
		}`))
	})

	st, err := c.CurrentGame(context.Background(), "bob")
	if err != nil {
		t.Fatalf("CurrentGame: %v", err)
	}
	if st.Color != "Black" {
		t.Fatalf("Color = %s, want Black", st.Color)
	}
}

func TestCurrentGameNotFoundMeansIdle(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	_, err := c.CurrentGame(context.Background(), "alice")
	if !errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("err = %v, want ErrNoActiveGame", err)
	}
}

func TestCurrentGameMalformedPayloadsAreIdle(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing id", body: `{"speed": "blitz", "opponent": {"username": "x"}}`},
		{name: "missing opponent", body: `{"id": "g3", "speed": "blitz"}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.CurrentGame(context.Background(), "alice")
			if !errors.Is(err, ErrNoActiveGame) {
				t.Fatalf("err = %v, want ErrNoActiveGame", err)
			}
		})
	}
}

func TestCurrentGameDefaultsOpponentName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "g4",
			"speed": "rapid",
			"opponent": {"username": ""},
			"players": {"white": {"user": {"name": "alice"}}}
		}`))
	})

	st, err := c.CurrentGame(context.Background(), "alice")
	if err != nil {
		t.Fatalf("CurrentGame: %v", err)
	}
	if st.Opponent != "Unknown" {
		t.Fatalf("Opponent = %q, want Unknown", st.Opponent)
	}
}

func TestCurrentGameTransportErrorIsNotIdle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // force connection refused

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second, RatePerSec: 100}, logx.Nop())
	_, err := c.CurrentGame(context.Background(), "alice")
	if err == nil || errors.Is(err, ErrNoActiveGame) {
		t.Fatalf("err = %v, want transport error", err)
	}
}
