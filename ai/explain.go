package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"phishlens/vetting"
)

// Explanation is the narrative attached to a verdict.
type Explanation struct {
	Classification    string `json:"classification"`
	AnalysisFindings  string `json:"analysis_findings"`
	RecommendedAction string `json:"recommended_action"`
	Source            string `json:"source"`
}

const (
	SourceGemini   = "gemini"
	SourceFallback = "fallback"
)

// deepPath is the URL_Depth from which the fallback mentions nesting.
const deepPath = 4

// Explainer turns a verdict into plain language. Without a Gemini client it
// always uses the built-in fallback text.
type Explainer struct {
	client *GeminiClient
}

func NewExplainer(client *GeminiClient) *Explainer {
	return &Explainer{client: client}
}

// Explain never fails: any Gemini error falls back to the built-in text.
// The verdict itself is never altered.
func (e *Explainer) Explain(ctx context.Context, res vetting.Result) Explanation {
	if e.client != nil {
		exp, err := e.ask(ctx, res)
		if err == nil {
			return exp
		}
		log.Printf("[AI] Gemini explanation failed for %s: %v", res.URL, err)
	}
	return Fallback(res)
}

func (e *Explainer) ask(ctx context.Context, res vetting.Result) (Explanation, error) {
	signals := map[string]int{}
	if res.Features != nil {
		signals = res.Features.Named()
	}
	signalJSON, _ := json.MarshalIndent(signals, "", "  ")

	prompt := fmt.Sprintf(VerdictPrompt, res.URL, res.Verdict, string(signalJSON))
	reply, err := e.client.Chat(ctx, []Message{{Role: "user", Content: prompt}}, SystemPrompt)
	if err != nil {
		return Explanation{}, err
	}

	exp, err := parseExplanation(reply)
	if err != nil {
		return Explanation{}, err
	}
	exp.Classification = res.Verdict.String()
	exp.Source = SourceGemini
	return exp, nil
}

// parseExplanation accepts the JSON reply, with or without a markdown fence.
func parseExplanation(reply string) (Explanation, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")

	var exp Explanation
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &exp); err != nil {
		return Explanation{}, fmt.Errorf("decode explanation: %w", err)
	}
	if exp.AnalysisFindings == "" {
		return Explanation{}, errors.New("explanation has no findings")
	}
	return exp, nil
}

// Fallback builds the explanation from the risky signals alone.
func Fallback(res vetting.Result) Explanation {
	var hints []string
	if res.Features != nil {
		for i, name := range vetting.FeatureNames {
			v := res.Features[i]
			if i == vetting.FeatURLDepth {
				if v >= deepPath {
					hints = append(hints, fmt.Sprintf("%s (%d levels)", signalHints[name], v))
				}
				continue
			}
			if v == 1 {
				hints = append(hints, signalHints[name])
			}
		}
	}

	findings := NoFindings
	if len(hints) > 0 {
		findings = "Risky signals: " + strings.Join(hints, "; ") + "."
	}

	return Explanation{
		Classification:    res.Verdict.String(),
		AnalysisFindings:  findings,
		RecommendedAction: recommendedAction(res.Verdict),
		Source:            SourceFallback,
	}
}

func recommendedAction(v vetting.Verdict) string {
	switch v {
	case vetting.KnownSafe:
		return "This site is on the known-safe list. Proceed normally."
	case vetting.DefinitePhishing:
		return "Do not enter credentials or payment details. Close the page and reach the service through its official address."
	case vetting.ClassifierUnavailable:
		return "The URL could not be fully assessed. Treat it as untrusted until it can be checked again."
	default:
		return "No phishing verdict was reached. Verify the address before entering personal data."
	}
}
