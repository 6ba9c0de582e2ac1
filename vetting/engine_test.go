package vetting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeMetadata struct {
	signals MetadataSignals
	calls   atomic.Int32
}

func (f *fakeMetadata) Extract(context.Context, string) MetadataSignals {
	f.calls.Add(1)
	return f.signals
}

type fakeContent struct {
	signals ContentSignals
	panics  bool
	calls   atomic.Int32
}

func (f *fakeContent) Extract(context.Context, string) ContentSignals {
	f.calls.Add(1)
	if f.panics {
		panic("boom")
	}
	return f.signals
}

type spyClassifier struct {
	mu     sync.Mutex
	pred   int
	err    error
	panics bool
	seen   [][]int
}

func (s *spyClassifier) Predict(_ context.Context, features []int) (int, error) {
	s.mu.Lock()
	s.seen = append(s.seen, features)
	s.mu.Unlock()
	if s.panics {
		panic("model exploded")
	}
	return s.pred, s.err
}

func (s *spyClassifier) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

var (
	metaBenign    = MetadataSignals{Benign, Benign, Benign, Benign}
	metaFailed    = MetadataSignals{Risky, Unavailable, Unavailable, Unavailable}
	contentBenign = ContentSignals{Benign, Benign, Benign}
	contentFailed = ContentSignals{Unavailable, Unavailable, Unavailable}
)

func TestEngineAllowlistShortCircuit(t *testing.T) {
	meta := &fakeMetadata{signals: metaFailed}
	content := &fakeContent{signals: contentFailed}
	spy := &spyClassifier{pred: 1}
	e := &Engine{
		Allowlist:  NewAllowlist("paypal.com@10.0.0.1"),
		Metadata:   meta,
		Content:    content,
		Classifier: spy,
	}

	res, err := e.Classify(context.Background(), "http://paypal.com@10.0.0.1//https-bit.ly/"+strings.Repeat("a", 60))
	if err != nil {
		t.Fatal(err)
	}
	if res.Verdict != KnownSafe || res.Stage != StageAllowlist {
		t.Errorf("got %s via %s, want known_safe via allowlist", res.Verdict, res.Stage)
	}
	if res.Features != nil {
		t.Errorf("features extracted on allowlist hit: %v", res.Features)
	}
	if meta.calls.Load() != 0 || content.calls.Load() != 0 || spy.calls() != 0 {
		t.Errorf("allowlist hit ran extractors or classifier")
	}
}

func TestEngineHeuristic(t *testing.T) {
	tests := []struct {
		name    string
		meta    MetadataSignals
		content ContentSignals
		zeros   int
	}{
		{"all benign", metaBenign, contentBenign, 15},
		{"one risky", metaBenign, ContentSignals{Risky, Benign, Benign}, 14},
		{"one unavailable", MetadataSignals{Benign, Unavailable, Benign, Benign}, contentBenign, 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &spyClassifier{pred: 1}
			e := &Engine{
				Allowlist:  NewAllowlist(),
				Metadata:   &fakeMetadata{signals: tt.meta},
				Content:    &fakeContent{signals: tt.content},
				Classifier: spy,
			}
			res, err := e.Classify(context.Background(), "http://x.y")
			if err != nil {
				t.Fatal(err)
			}
			if z := res.Features.Zeros(); z != tt.zeros {
				t.Fatalf("zeros = %d, want %d", z, tt.zeros)
			}
			if res.Verdict != Indeterminate || res.Stage != StageHeuristic || res.ClassifierInvoked {
				t.Errorf("got %s via %s (invoked=%v)", res.Verdict, res.Stage, res.ClassifierInvoked)
			}
			if spy.calls() != 0 {
				t.Errorf("classifier called %d times", spy.calls())
			}
		})
	}
}

func TestEngineClassifierStage(t *testing.T) {
	tests := []struct {
		name string
		pred int
		want Verdict
	}{
		{"phishing", 1, DefinitePhishing},
		{"legitimate", 0, Indeterminate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &spyClassifier{pred: tt.pred}
			e := &Engine{
				Allowlist:  NewAllowlist(),
				Metadata:   &fakeMetadata{signals: metaBenign},
				Content:    &fakeContent{signals: ContentSignals{Risky, Benign, Risky}},
				Classifier: spy,
			}
			res, err := e.Classify(context.Background(), "http://x.y")
			if err != nil {
				t.Fatal(err)
			}
			if res.Verdict != tt.want || res.Stage != StageClassifier || !res.ClassifierInvoked {
				t.Errorf("got %s via %s", res.Verdict, res.Stage)
			}
			if spy.calls() != 1 {
				t.Fatalf("classifier called %d times, want 1", spy.calls())
			}
			want := []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 1}
			if got := spy.seen[0]; !equalInts(got, want) {
				t.Errorf("classifier input = %v, want %v", got, want)
			}
		})
	}
}

func TestEngineFailSafeExtraction(t *testing.T) {
	spy := &spyClassifier{pred: 1}
	e := &Engine{
		Allowlist:  NewAllowlist(),
		Metadata:   &fakeMetadata{signals: metaFailed},
		Content:    &fakeContent{signals: contentFailed},
		Classifier: spy,
	}
	res, err := e.Classify(context.Background(), "http://x.y")
	if err != nil {
		t.Fatal(err)
	}
	want := FeatureVector{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1}
	if *res.Features != want {
		t.Errorf("features = %v, want %v", *res.Features, want)
	}
	if spy.calls() != 1 || res.Verdict != DefinitePhishing {
		t.Errorf("calls = %d verdict = %s", spy.calls(), res.Verdict)
	}
}

func TestEngineLexicalRiskReachesClassifier(t *testing.T) {
	spy := &spyClassifier{pred: 0}
	e := &Engine{
		Allowlist:  NewAllowlist(),
		Metadata:   &fakeMetadata{signals: metaBenign},
		Content:    &fakeContent{signals: contentBenign},
		Classifier: spy,
	}
	res, err := e.Classify(context.Background(), "http://https-z.com//")
	if err != nil {
		t.Fatal(err)
	}
	if z := res.Features.Zeros(); z != 12 {
		t.Errorf("zeros = %d, want 12", z)
	}
	if spy.calls() != 1 || res.Verdict != Indeterminate {
		t.Errorf("calls = %d verdict = %s", spy.calls(), res.Verdict)
	}
}

func TestEngineClassifierUnavailable(t *testing.T) {
	tests := []struct {
		name string
		clf  Classifier
	}{
		{"error", &spyClassifier{err: errors.New("model file corrupt")}},
		{"out of range", &spyClassifier{pred: 2}},
		{"panic", &spyClassifier{panics: true}},
		{"missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Engine{
				Allowlist:  NewAllowlist(),
				Metadata:   &fakeMetadata{signals: metaFailed},
				Content:    &fakeContent{signals: contentFailed},
				Classifier: tt.clf,
			}
			res, err := e.Classify(context.Background(), "http://x.y")
			if !errors.Is(err, ErrClassifierUnavailable) {
				t.Fatalf("err = %v, want ErrClassifierUnavailable", err)
			}
			if res.Verdict != ClassifierUnavailable {
				t.Errorf("verdict = %s, want unavailable", res.Verdict)
			}
			if res.Features == nil {
				t.Error("features dropped on classifier failure")
			}
		})
	}
}

func TestEngineExtractorPanic(t *testing.T) {
	spy := &spyClassifier{pred: 1}
	e := &Engine{
		Allowlist:  NewAllowlist(),
		Metadata:   &fakeMetadata{signals: metaBenign},
		Content:    &fakeContent{panics: true},
		Classifier: spy,
	}
	res, err := e.Classify(context.Background(), "http://x.y")
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{FeatIFrame, FeatMouseOver, FeatWebForwards} {
		if res.Features[i] != 1 {
			t.Errorf("%s = %d after panic, want 1", FeatureNames[i], res.Features[i])
		}
	}
	if spy.calls() != 1 {
		t.Errorf("classifier called %d times, want 1", spy.calls())
	}
}

func TestEngineIdempotentAndConcurrent(t *testing.T) {
	spy := &spyClassifier{pred: 1}
	e := &Engine{
		Allowlist:  NewAllowlist(),
		Metadata:   &fakeMetadata{signals: metaFailed},
		Content:    &fakeContent{signals: contentBenign},
		Classifier: spy,
	}
	first, err := e.Classify(context.Background(), "http://x.y/login")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Classify(context.Background(), "http://x.y/login")
			if err != nil {
				t.Error(err)
				return
			}
			if res.Verdict != first.Verdict || *res.Features != *first.Features {
				t.Errorf("non-deterministic result: %s %v", res.Verdict, *res.Features)
			}
		}()
	}
	wg.Wait()
}

func TestAssemble(t *testing.T) {
	lex := LexicalSignals{1, 0, 1, 3, 0, Unavailable, 0, 1}
	meta := MetadataSignals{0, Unavailable, 1, 0}
	content := ContentSignals{Unavailable, 0, 1}

	got := Assemble(lex, meta, content)
	want := FeatureVector{1, 0, 1, 3, 0, 1, 0, 1, 0, 1, 1, 0, 1, 0, 1}
	if got != want {
		t.Errorf("Assemble = %v, want %v", got, want)
	}
	if got.Zeros() != 5 {
		t.Errorf("Zeros = %d, want 5", got.Zeros())
	}
	if n := got.Named(); n["URL_Depth"] != 3 || n["Web_Traffic"] != 1 || len(n) != FeatureCount {
		t.Errorf("Named = %v", n)
	}
}

func TestVerdictString(t *testing.T) {
	for v, want := range map[Verdict]string{
		KnownSafe:             "known_safe",
		DefinitePhishing:      "phishing",
		Indeterminate:         "indeterminate",
		ClassifierUnavailable: "unavailable",
	} {
		if v.String() != want {
			t.Errorf("%d.String() = %q, want %q", v, v.String(), want)
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
