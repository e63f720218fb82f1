package gold

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golddash/internal/httpx"
	"golddash/internal/market"
)

const goldPage = `Gia vang hom nay
SJC
8.450 120
8.520 120
PNJ
8.100
8.180
`

func newClient() *httpx.Client {
	return httpx.New(2 * time.Second)
}

func TestFetch_ScalesIntoVndPerTael(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(goldPage))
	}))
	defer srv.Close()

	s := New(Config{Endpoints: []Endpoint{{Label: "primary", URL: srv.URL}}}, newClient())
	obs, err := s.Fetch(t.Context())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Value.String() != "85200000" {
		t.Fatalf("sell price: got %s, want 85200000", obs.Value)
	}
	if obs.Secondary == nil || obs.Secondary.String() != "84500000" {
		t.Fatalf("buy price: got %v, want 84500000", obs.Secondary)
	}
	if obs.Unit != "VND/tael" || obs.Quantity != market.Gold {
		t.Fatalf("unexpected observation: %+v", obs)
	}
	if obs.Source != "sjc-gold:primary" {
		t.Fatalf("source tag: %s", obs.Source)
	}
}

func TestFetch_PrimaryWinsWhenBothRespond(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("SJC\n8.450\n8.520\n"))
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("SJC\n8.000\n8.100\n"))
	}))
	defer secondary.Close()

	s := New(Config{Endpoints: []Endpoint{
		{Label: "primary", URL: primary.URL},
		{Label: "secondary", URL: secondary.URL},
	}}, newClient())

	obs, err := s.Fetch(t.Context())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Source != "sjc-gold:primary" {
		t.Fatalf("declared order decides precedence, got %s", obs.Source)
	}
	if obs.Value.String() != "85200000" {
		t.Fatalf("got %s from the wrong endpoint", obs.Value)
	}
}

func TestFetch_FallsBackToSecondary(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("SJC\n8.000\n8.100\n"))
	}))
	defer secondary.Close()

	s := New(Config{Endpoints: []Endpoint{
		{Label: "primary", URL: primary.URL},
		{Label: "secondary", URL: secondary.URL},
	}}, newClient())

	obs, err := s.Fetch(t.Context())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Source != "sjc-gold:secondary" {
		t.Fatalf("want secondary fallback, got %s", obs.Source)
	}
}

func TestFetch_AllEndpointsDown_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := New(Config{Endpoints: []Endpoint{{Label: "only", URL: srv.URL}}}, newClient())
	_, err := s.Fetch(t.Context())
	var ne *market.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("want NetworkError, got %v", err)
	}
}

func TestFetch_MissingAnchor_ExtractionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("no gold prices on this page today\n"))
	}))
	defer srv.Close()

	s := New(Config{Endpoints: []Endpoint{{Label: "only", URL: srv.URL}}}, newClient())
	_, err := s.Fetch(t.Context())
	var ee *market.ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("want ExtractionError, got %v", err)
	}
}

func TestFetch_ImplausibleFiguresSkipped(t *testing.T) {
	// Change columns and tiny figures near the anchor must not be taken
	// for prices.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("SJC\n120\n0,5\n8.450\n8.520\n"))
	}))
	defer srv.Close()

	s := New(Config{Endpoints: []Endpoint{{Label: "only", URL: srv.URL}}}, newClient())
	obs, err := s.Fetch(t.Context())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Value.String() != "85200000" {
		t.Fatalf("got %s, want 85200000", obs.Value)
	}
}
