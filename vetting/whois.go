package vetting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	whois "github.com/likexian/whois"
	parser "github.com/likexian/whois-parser"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Registration is the outcome of one registry lookup. Dates are zero when
// the record does not carry them or they could not be parsed.
type Registration struct {
	Domain  string
	Created time.Time
	Expires time.Time
}

// WhoisLookup queries the registration record of a registrable domain.
type WhoisLookup interface {
	Lookup(ctx context.Context, domain string) (*Registration, error)
}

var errNoDomainRecord = errors.New("whois response has no domain record")

// WhoisClient is the WhoisLookup backed by public WHOIS servers. Queries are
// paced by a token bucket and concurrent queries for the same domain share
// one round trip.
type WhoisClient struct {
	client  *whois.Client
	limiter *rate.Limiter
	flight  singleflight.Group
}

// NewWhoisClient builds a client. perSecond <= 0 disables pacing.
func NewWhoisClient(timeout time.Duration, perSecond float64, burst int) *WhoisClient {
	w := &WhoisClient{
		client: whois.NewClient().SetTimeout(timeout),
	}
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return w
}

// Lookup returns the registration for domain. The whois library has no
// context support, so the call is abandoned, not interrupted, when ctx ends.
func (w *WhoisClient) Lookup(ctx context.Context, domain string) (*Registration, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("whois pacing: %w", err)
		}
	}

	ch := w.flight.DoChan(domain, func() (interface{}, error) {
		return w.query(domain)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Printf("[WHOIS] Shared in-flight lookup for %s", domain)
		}
		return res.Val.(*Registration), nil
	}
}

func (w *WhoisClient) query(domain string) (*Registration, error) {
	raw, err := w.client.Whois(domain)
	if err != nil {
		return nil, fmt.Errorf("whois %s: %w", domain, err)
	}
	return ParseRegistration(domain, raw)
}

// ParseRegistration extracts creation and expiry dates from a raw WHOIS
// response.
func ParseRegistration(domain, raw string) (*Registration, error) {
	info, err := parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse whois %s: %w", domain, err)
	}
	if info.Domain == nil {
		return nil, fmt.Errorf("parse whois %s: %w", domain, errNoDomainRecord)
	}
	return &Registration{
		Domain:  domain,
		Created: parseWhoisDate(info.Domain.CreatedDate),
		Expires: parseWhoisDate(info.Domain.ExpirationDate),
	}, nil
}

var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
	"2006/01/02",
	"02.01.2006",
	"January 2 2006",
}

func parseWhoisDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, l := range whoisDateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
