package vetting

import (
	"context"
	"errors"
	"log"
	"math"
	"net"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRankThreshold = 100000
	youngDomainMonths    = 6
	nearExpiryDays       = 180
)

// MetadataExtractor produces the four registration-derived signals:
// DNS_Record, Web_Traffic, Domain_Age and Domain_End.
type MetadataExtractor struct {
	Whois         WhoisLookup
	Ranks         RankSource
	Timeout       time.Duration
	RankThreshold int
	Now           func() time.Time
}

// Extract performs one registry lookup and one rank lookup for raw. Every
// failure, timeout or cancellation included, turns into risk.
func (m *MetadataExtractor) Extract(ctx context.Context, raw string) MetadataSignals {
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	s := MetadataSignals{Benign, Unavailable, Unavailable, Unavailable}
	domain, domainErr := RegistrableDomain(raw)

	var g errgroup.Group
	g.Go(func() error {
		s[1] = m.trafficSignal(ctx, domain, domainErr)
		return nil
	})
	g.Go(func() error {
		err := domainErr
		var reg *Registration
		if err == nil {
			reg, err = m.Whois.Lookup(ctx, domain)
		}
		if err != nil {
			log.Printf("[WHOIS] Lookup failed for %q: %v", domain, err)
			s[0] = Risky
			return nil
		}
		s[2] = m.ageSignal(reg)
		s[3] = m.expirySignal(reg)
		return nil
	})
	_ = g.Wait()
	return s
}

func (m *MetadataExtractor) trafficSignal(ctx context.Context, domain string, domainErr error) Signal {
	if domainErr != nil || m.Ranks == nil {
		return Unavailable
	}
	rank, err := m.Ranks.Rank(ctx, domain)
	if err != nil {
		log.Printf("[RANK] No rank for %s: %v", domain, err)
		return Unavailable
	}
	threshold := m.RankThreshold
	if threshold <= 0 {
		threshold = DefaultRankThreshold
	}
	return flag(rank >= threshold)
}

func (m *MetadataExtractor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// ageSignal is benign only for a domain created more than six months ago.
func (m *MetadataExtractor) ageSignal(reg *Registration) Signal {
	if reg.Created.IsZero() {
		return Unavailable
	}
	return flag(!m.now().After(addMonths(reg.Created, youngDomainMonths)))
}

// addMonths moves t by n calendar months, clamping the day to the end of
// the target month: Aug 31 plus six months is Feb 28, not Mar 3.
func addMonths(t time.Time, n int) time.Time {
	y, mo, d := t.Date()
	first := time.Date(y, mo+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// expirySignal measures the distance to the expiry date in whole days. The
// distance is absolute, so a date long past counts as far away, matching
// how the model's training data was labeled.
func (m *MetadataExtractor) expirySignal(reg *Registration) Signal {
	if reg.Expires.IsZero() {
		return Unavailable
	}
	days := math.Floor(reg.Expires.Sub(m.now()).Hours() / 24)
	return flag(math.Abs(days) < nearExpiryDays)
}

var errNoHost = errors.New("url has no usable host")

// RegistrableDomain returns the eTLD+1 of the URL's host, the host itself
// when it is an address or has no public suffix.
func RegistrableDomain(raw string) (string, error) {
	p, err := parseURL(raw)
	if err != nil {
		return "", err
	}
	host := strings.TrimSuffix(hostname(p.netloc), ".")
	if host == "" || strings.ContainsAny(host, " \t") {
		return "", errNoHost
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return domain, nil
}
