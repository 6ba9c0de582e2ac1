package vetting

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// RankSource returns the web-traffic rank of a registrable domain. Any error
// means the rank is unknown.
type RankSource interface {
	Rank(ctx context.Context, domain string) (int, error)
}

var (
	ErrRankNotFound   = errors.New("domain not ranked")
	ErrRankNotNumeric = errors.New("rank is not numeric")
)

// NoRankSource has no ranking data; every domain is unranked.
type NoRankSource struct{}

func (NoRankSource) Rank(context.Context, string) (int, error) {
	return 0, ErrRankNotFound
}

// TrancoRankSource serves ranks from a Tranco-format list ("rank,domain")
// loaded once at start.
type TrancoRankSource struct {
	ranks map[string]int
}

// LoadTrancoRanks reads a Tranco list file. topN > 0 keeps only the first
// topN rows.
func LoadTrancoRanks(path string, topN int) (*TrancoRankSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tranco list: %w", err)
	}
	defer f.Close()

	src, err := ReadTrancoRanks(f, topN)
	if err != nil {
		return nil, fmt.Errorf("read tranco list %s: %w", path, err)
	}
	log.Printf("[RANK] Loaded %d ranked domains from %s", len(src.ranks), path)
	return src, nil
}

// ReadTrancoRanks parses a Tranco list from r. Malformed rows are skipped.
func ReadTrancoRanks(r io.Reader, topN int) (*TrancoRankSource, error) {
	src := &TrancoRankSource{ranks: make(map[string]int)}
	scanner := bufio.NewScanner(r)
	count := 0
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), ",")
		if len(parts) < 2 {
			continue
		}
		rank, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		domain := strings.ToLower(strings.Trim(strings.TrimSpace(parts[1]), `"'`))
		if domain == "" {
			continue
		}
		if _, seen := src.ranks[domain]; !seen {
			src.ranks[domain] = rank
		}
		count++
		if topN > 0 && count >= topN {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return src, nil
}

func (t *TrancoRankSource) Rank(_ context.Context, domain string) (int, error) {
	rank, ok := t.ranks[strings.ToLower(domain)]
	if !ok {
		return 0, ErrRankNotFound
	}
	return rank, nil
}

// PageRankSource scrapes the rank from an HTML ranking page. URLTemplate
// carries one %s for the domain; Selector picks the element whose text is
// the rank.
type PageRankSource struct {
	URLTemplate string
	Selector    string
	Client      *http.Client
}

// NewPageRankSource builds a scraper with its own bounded HTTP client.
func NewPageRankSource(urlTemplate, selector string, timeout time.Duration) *PageRankSource {
	return &PageRankSource{
		URLTemplate: urlTemplate,
		Selector:    selector,
		Client:      &http.Client{Timeout: timeout},
	}
}

func (p *PageRankSource) Rank(ctx context.Context, domain string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(p.URLTemplate, domain), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rank page status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("parse rank page: %w", err)
	}
	sel := doc.Find(p.Selector).First()
	if sel.Length() == 0 {
		return 0, ErrRankNotFound
	}
	return parseRank(sel.Text())
}

// parseRank accepts digits with optional thousands separators.
func parseRank(text string) (int, error) {
	text = strings.TrimSpace(text)
	text = strings.NewReplacer(",", "", " ", "", "#", "").Replace(text)
	if text == "" {
		return 0, ErrRankNotNumeric
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrRankNotNumeric, text)
		}
	}
	return strconv.Atoi(text)
}
