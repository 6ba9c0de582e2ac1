package vetting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const trancoSample = `1,google.com
2,Facebook.com
bad line
x,notanumber.com
3,"amazon.com"
4,google.com
5,tail.example
`

func TestReadTrancoRanks(t *testing.T) {
	src, err := ReadTrancoRanks(strings.NewReader(trancoSample), 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		domain string
		want   int
		err    error
	}{
		{"google.com", 1, nil},
		{"facebook.com", 2, nil},
		{"AMAZON.COM", 3, nil},
		{"tail.example", 5, nil},
		{"notanumber.com", 0, ErrRankNotFound},
		{"unknown.org", 0, ErrRankNotFound},
	}
	for _, tt := range tests {
		got, err := src.Rank(context.Background(), tt.domain)
		if !errors.Is(err, tt.err) {
			t.Errorf("Rank(%q) err = %v, want %v", tt.domain, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("Rank(%q) = %d, want %d", tt.domain, got, tt.want)
		}
	}
}

func TestReadTrancoRanksTopN(t *testing.T) {
	src, err := ReadTrancoRanks(strings.NewReader(trancoSample), 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Rank(context.Background(), "facebook.com"); err != nil {
		t.Errorf("facebook.com should be within top 2: %v", err)
	}
	if _, err := src.Rank(context.Background(), "amazon.com"); !errors.Is(err, ErrRankNotFound) {
		t.Errorf("amazon.com should be cut by topN, got %v", err)
	}
}

func TestLoadTrancoRanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "top-1m.csv")
	if err := os.WriteFile(path, []byte(trancoSample), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := LoadTrancoRanks(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if r, _ := src.Rank(context.Background(), "google.com"); r != 1 {
		t.Errorf("google.com rank = %d, want 1", r)
	}
	if _, err := LoadTrancoRanks(filepath.Join(t.TempDir(), "none.csv"), 0); err == nil {
		t.Error("missing file: want error")
	}
}

func TestPageRankSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("d") {
		case "popular.com":
			fmt.Fprint(w, `<html><body><div class="rankmini-rank"> #1,234 </div><div class="rankmini-rank">9</div></body></html>`)
		case "hidden.com":
			fmt.Fprint(w, `<html><body><div class="rankmini-rank">-</div></body></html>`)
		case "missing.com":
			fmt.Fprint(w, `<html><body><p>nothing here</p></body></html>`)
		default:
			http.Error(w, "blocked", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	src := NewPageRankSource(srv.URL+"/?d=%s", "div.rankmini-rank", time.Second)

	rank, err := src.Rank(context.Background(), "popular.com")
	if err != nil || rank != 1234 {
		t.Errorf("popular.com = %d, %v; want 1234", rank, err)
	}
	if _, err := src.Rank(context.Background(), "hidden.com"); !errors.Is(err, ErrRankNotNumeric) {
		t.Errorf("hidden.com err = %v, want ErrRankNotNumeric", err)
	}
	if _, err := src.Rank(context.Background(), "missing.com"); !errors.Is(err, ErrRankNotFound) {
		t.Errorf("missing.com err = %v, want ErrRankNotFound", err)
	}
	if _, err := src.Rank(context.Background(), "other.com"); err == nil {
		t.Error("403 response: want error")
	}
}

func TestParseRank(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"42", 42, true},
		{" 1,000,000 ", 1000000, true},
		{"#7", 7, true},
		{"", 0, false},
		{"n/a", 0, false},
		{"12k", 0, false},
	}
	for _, tt := range tests {
		got, err := parseRank(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseRank(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseRank(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
