package vetting

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var ErrMalformedURL = errors.New("malformed url")

// Shortening services. Matched unanchored against the network location, so
// "t\.co" also hits hosts like "microsoft.com"; the trained model saw the
// same behavior.
var shortenerPattern = regexp.MustCompile(`bit\.ly|goo\.gl|shorte\.st|go2l\.ink|x\.co|ow\.ly|t\.co|tinyurl|tr\.im|is\.gd|cli\.gs|` +
	`yfrog\.com|migre\.me|ff\.im|tiny\.cc|url4\.eu|twit\.ac|su\.pr|twurl\.nl|snipurl\.com|` +
	`short\.to|BudURL\.com|ping\.fm|post\.ly|Just\.as|bkite\.com|snipr\.com|fic\.kr|loopt\.us|` +
	`doiop\.com|short\.ie|kl\.am|wp\.me|rubyurl\.com|om\.ly|to\.ly|bit\.do|lnkd\.in|db\.tt|` +
	`qr\.ae|adf\.ly|bitly\.com|cur\.lv|tinyurl\.com|ity\.im|q\.gs|` +
	`po\.st|bc\.vc|twitthis\.com|u\.to|j\.mp|buzurl\.com|cutt\.us|u\.bb|yourls\.org|` +
	`prettylinkpro\.com|scrnch\.me|filoops\.info|vzturl\.com|qr\.net|1url\.com|tweez\.me|v\.gd|` +
	`link\.zip\.net`)

// obscuringChars historically hide the real host behind an "@".
const obscuringChars = "@~`!$%&"

const (
	longURLThreshold = 54
	schemeEndPos     = 7
)

// parsed holds the pieces of a URL the checks look at.
type parsed struct {
	raw    string
	netloc string
	path   string
}

// paramSchemes carry ";params" after the last path segment.
var paramSchemes = map[string]bool{
	"": true, "ftp": true, "hdl": true, "prospero": true, "http": true, "imap": true,
	"https": true, "shttp": true, "rtsp": true, "rtspu": true, "sip": true, "sips": true,
	"mms": true, "sftp": true, "tel": true,
}

// parseURL splits raw without validating the pieces, so stray escapes and
// odd ports are taken as written. Only unbalanced IPv6 brackets in the
// network location fail.
func parseURL(raw string) (parsed, error) {
	p := parsed{raw: raw}
	rest := strings.Map(func(r rune) rune {
		if r == '\t' || r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, strings.TrimLeft(raw, c0OrSpace))

	scheme := ""
	if i := strings.IndexByte(rest, ':'); i > 0 && isSchemeName(rest[:i]) {
		scheme, rest = strings.ToLower(rest[:i]), rest[i+1:]
	}
	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		end := strings.IndexAny(rest, "/?#")
		if end < 0 {
			end = len(rest)
		}
		p.netloc, rest = rest[:end], rest[end:]
		if strings.Contains(p.netloc, "[") != strings.Contains(p.netloc, "]") {
			return parsed{raw: raw}, fmt.Errorf("%w: unbalanced brackets in %q", ErrMalformedURL, p.netloc)
		}
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if paramSchemes[scheme] {
		rest = trimParams(rest)
	}
	p.path = rest
	return p, nil
}

const c0OrSpace = "\x00\x01\x02\x03\x04\x05\x06\x07\x08\t\n\x0b\x0c\r\x0e\x0f" +
	"\x10\x11\x12\x13\x14\x15\x16\x17\x18\x19\x1a\x1b\x1c\x1d\x1e\x1f "

func isSchemeName(s string) bool {
	for i, r := range s {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case i > 0 && (('0' <= r && r <= '9') || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// trimParams drops ";params" from the last path segment.
func trimParams(path string) string {
	last := strings.LastIndexByte(path, '/') + 1
	if i := strings.IndexByte(path[last:], ';'); i >= 0 {
		return path[:last+i]
	}
	return path
}

// hostname lowers the host part of a network location, without userinfo,
// port or IPv6 brackets.
func hostname(netloc string) string {
	host := netloc[strings.LastIndexByte(netloc, '@')+1:]
	if strings.HasPrefix(host, "[") {
		if i := strings.IndexByte(host, ']'); i >= 0 {
			host = host[1:i]
		}
	} else if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.ToLower(host)
}

// NetworkLocation extracts the network location of raw.
func NetworkLocation(raw string) (string, error) {
	p, err := parseURL(raw)
	if err != nil {
		return "", err
	}
	return p.netloc, nil
}

// ExtractLexical runs the eight syntactic checks. None of them touch the
// network. Checks that need the parsed URL report Unavailable when raw does
// not parse.
func ExtractLexical(raw string) LexicalSignals {
	p, err := parseURL(raw)
	ok := err == nil

	var s LexicalSignals
	s[0] = flag(HexHost(raw))
	s[1] = flag(strings.ContainsAny(raw, obscuringChars))
	s[2] = flag(utf8.RuneCountInString(raw) >= longURLThreshold)
	s[4] = flag(RedirectPosition(raw) > schemeEndPos)
	if !ok {
		s[3], s[5], s[6], s[7] = Unavailable, Unavailable, Unavailable, Unavailable
		return s
	}
	s[3] = Signal(Depth(p.path))
	s[5] = flag(strings.Contains(p.netloc, "https"))
	s[6] = flag(shortenerPattern.MatchString(p.netloc))
	s[7] = flag(strings.Contains(p.netloc, "-"))
	return s
}

// HexHost reports whether every character between "://" and the next "/",
// dots removed, is a hex digit. It stands in for "host is a raw address" and
// fires on short all-hex names such as "a.b" or "cafe.be". An empty host
// counts as hex.
func HexHost(raw string) bool {
	host := raw
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	host = strings.ReplaceAll(host, ".", "")
	for _, r := range host {
		if !isHex(r) {
			return false
		}
	}
	return true
}

func isHex(r rune) bool {
	return ('0' <= r && r <= '9') || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}

// Depth counts non-empty path segments.
func Depth(path string) int {
	n := 0
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			n++
		}
	}
	return n
}

// RedirectPosition returns the character position of the last "//" in raw,
// or -1. Positions up to 7 belong to the scheme separator.
func RedirectPosition(raw string) int {
	i := strings.LastIndex(raw, "//")
	if i < 0 {
		return -1
	}
	return utf8.RuneCountInString(raw[:i])
}
