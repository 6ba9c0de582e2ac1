package vetting

import "fmt"

// Signal is one extracted reading. Binary checks use Benign/Risky, URL depth
// carries a count, and Unavailable marks a reading its extractor could not
// produce.
type Signal int

const (
	Benign      Signal = 0
	Risky       Signal = 1
	Unavailable Signal = -1
)

func flag(b bool) Signal {
	if b {
		return Risky
	}
	return Benign
}

// Feature positions. The classifier was trained on exactly this order.
const (
	FeatHavingIP = iota
	FeatHaveAt
	FeatURLLength
	FeatURLDepth
	FeatRedirection
	FeatHTTPSDomain
	FeatTinyURL
	FeatPrefixSuffix
	FeatDNSRecord
	FeatWebTraffic
	FeatDomainAge
	FeatDomainEnd
	FeatIFrame
	FeatMouseOver
	FeatWebForwards

	FeatureCount
)

// FeatureNames lists the feature names in vector order.
var FeatureNames = [FeatureCount]string{
	"Have_IP",
	"Have_At",
	"URL_Length",
	"URL_Depth",
	"Redirection",
	"https_Domain",
	"TinyURL",
	"Prefix/Suffix",
	"DNS_Record",
	"Web_Traffic",
	"Domain_Age",
	"Domain_End",
	"iFrame",
	"Mouse_Over",
	"Web_Forwards",
}

// LexicalSignals, MetadataSignals and ContentSignals are the sub-ranges each
// extractor owns.
type (
	LexicalSignals  [8]Signal
	MetadataSignals [4]Signal
	ContentSignals  [3]Signal
)

// FeatureVector is the assembled classifier input.
type FeatureVector [FeatureCount]int

// failSafe is the value substituted for an Unavailable reading.
const failSafe = int(Risky)

// Assemble concatenates the three sub-ranges in the fixed order and converts
// every Unavailable reading to its fail-safe risk value.
func Assemble(lex LexicalSignals, meta MetadataSignals, content ContentSignals) FeatureVector {
	var v FeatureVector
	i := 0
	put := func(s Signal) {
		if s == Unavailable {
			v[i] = failSafe
		} else {
			v[i] = int(s)
		}
		i++
	}
	for _, s := range lex {
		put(s)
	}
	for _, s := range meta {
		put(s)
	}
	for _, s := range content {
		put(s)
	}
	return v
}

// Zeros counts benign entries.
func (v FeatureVector) Zeros() int {
	n := 0
	for _, x := range v {
		if x == 0 {
			n++
		}
	}
	return n
}

// Slice returns a copy of the vector as a slice for classifier calls.
func (v FeatureVector) Slice() []int {
	out := make([]int, FeatureCount)
	copy(out, v[:])
	return out
}

// Named maps feature names to values for JSON output.
func (v FeatureVector) Named() map[string]int {
	m := make(map[string]int, FeatureCount)
	for i, name := range FeatureNames {
		m[name] = v[i]
	}
	return m
}

func (v FeatureVector) String() string {
	return fmt.Sprint(v[:])
}
