package vetting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrClassifierUnavailable is returned when the model cannot produce a
// prediction. It is never converted into a benign verdict.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// Verdict is the final determination for a URL.
type Verdict int

const (
	Indeterminate Verdict = iota
	KnownSafe
	DefinitePhishing
	ClassifierUnavailable
)

func (v Verdict) String() string {
	switch v {
	case KnownSafe:
		return "known_safe"
	case DefinitePhishing:
		return "phishing"
	case Indeterminate:
		return "indeterminate"
	case ClassifierUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Decision stages.
const (
	StageAllowlist  = "allowlist"
	StageHeuristic  = "heuristic"
	StageClassifier = "classifier"
)

type AllowlistStore interface {
	IsKnownSafe(raw string) bool
}

type MetadataSource interface {
	Extract(ctx context.Context, raw string) MetadataSignals
}

type ContentSource interface {
	Extract(ctx context.Context, raw string) ContentSignals
}

// Classifier is the trained binary model. It receives the vector in
// FeatureNames order and returns 0 or 1.
type Classifier interface {
	Predict(ctx context.Context, features []int) (int, error)
}

// Result describes how a verdict was reached. Features is nil on an
// allowlist hit.
type Result struct {
	URL               string
	Verdict           Verdict
	Stage             string
	Features          *FeatureVector
	Prediction        int
	ClassifierInvoked bool
	Elapsed           time.Duration
}

// Engine composes the allowlist, the three extractors and the classifier.
// All of its collaborators are read-only after construction and shared by
// concurrent requests.
type Engine struct {
	Allowlist  AllowlistStore
	Metadata   MetadataSource
	Content    ContentSource
	Classifier Classifier
}

// heuristicBenignZeros is the zero count at or above which the vector is
// trusted as benign without consulting the model: all signals benign, or
// exactly one risky.
const heuristicBenignZeros = FeatureCount - 1

// Classify produces the verdict for raw. The only error it returns wraps
// ErrClassifierUnavailable, alongside a Result carrying the
// ClassifierUnavailable verdict and the assembled features.
func (e *Engine) Classify(ctx context.Context, raw string) (Result, error) {
	start := time.Now()
	res := Result{URL: raw}

	if e.Allowlist != nil && e.Allowlist.IsKnownSafe(raw) {
		res.Verdict = KnownSafe
		res.Stage = StageAllowlist
		res.Elapsed = time.Since(start)
		log.Printf("[ENGINE] %s known-safe", raw)
		return res, nil
	}

	v := e.extract(ctx, raw)
	res.Features = &v

	if v.Zeros() >= heuristicBenignZeros {
		res.Stage = StageHeuristic
		res.Prediction = 0
	} else {
		res.Stage = StageClassifier
		res.ClassifierInvoked = true
		pred, err := e.predict(ctx, v)
		if err != nil {
			res.Verdict = ClassifierUnavailable
			res.Elapsed = time.Since(start)
			log.Printf("[ENGINE] %s classifier failed: %v", raw, err)
			return res, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
		}
		res.Prediction = pred
	}

	res.Verdict = finalVerdict(res.Prediction, false)
	res.Elapsed = time.Since(start)
	log.Printf("[ENGINE] %s features=%s stage=%s verdict=%s (%s)", raw, v, res.Stage, res.Verdict, res.Elapsed)
	return res, nil
}

// finalVerdict maps the working prediction. knownSafe is always false once
// extraction ran; it mirrors the legacy status-code contract.
func finalVerdict(prediction int, knownSafe bool) Verdict {
	if prediction == 1 && !knownSafe {
		return DefinitePhishing
	}
	return Indeterminate
}

// extract runs the three extractors concurrently and joins on all of them.
func (e *Engine) extract(ctx context.Context, raw string) FeatureVector {
	lex := LexicalSignals{Unavailable, Unavailable, Unavailable, Unavailable, Unavailable, Unavailable, Unavailable, Unavailable}
	meta := MetadataSignals{Risky, Unavailable, Unavailable, Unavailable}
	content := ContentSignals{Unavailable, Unavailable, Unavailable}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(safely("lexical", func() {
		lex = ExtractLexical(raw)
	}))
	if e.Metadata != nil {
		g.Go(safely("metadata", func() {
			meta = e.Metadata.Extract(gctx, raw)
		}))
	}
	if e.Content != nil {
		g.Go(safely("content", func() {
			content = e.Content.Extract(gctx, raw)
		}))
	}
	_ = g.Wait()

	return Assemble(lex, meta, content)
}

// safely keeps a panicking extractor from taking the request down; its
// signals keep their fail-safe defaults.
func safely(name string, fn func()) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[ENGINE] %s extractor panicked: %v", name, r)
			}
		}()
		fn()
		return nil
	}
}

func (e *Engine) predict(ctx context.Context, v FeatureVector) (pred int, err error) {
	if e.Classifier == nil {
		return 0, errors.New("no classifier configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panicked: %v", r)
		}
	}()
	pred, err = e.Classifier.Predict(ctx, v.Slice())
	if err != nil {
		return 0, err
	}
	if pred != 0 && pred != 1 {
		return 0, fmt.Errorf("classifier returned %d, want 0 or 1", pred)
	}
	return pred, nil
}
