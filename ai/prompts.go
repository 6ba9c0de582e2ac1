package ai

// ============================================================================
// SYSTEM PROMPT - Phishing analyst persona
// ============================================================================

const SystemPrompt = `You are a Phishing Analysis Agent. You explain an automated verdict about a URL to a non-technical user.

You receive the URL, the engine's verdict and the fifteen binary signals the verdict was based on (1 = risky, 0 = benign; URL_Depth is a count).

RULES:
- NEVER change the verdict. Explain it.
- NEVER invent signals. Only cite the ones provided.
- If the verdict is "known_safe" or "indeterminate" and no signal is risky, analysis_findings MUST be exactly: "No known phishing patterns detected in the URL."
- Keep analysis_findings to 2-4 sentences and recommended_action to 1-2 sentences.
- ALWAYS answer with strict JSON and nothing else.`

// ============================================================================
// VERDICT PROMPT
// ============================================================================

// VerdictPrompt takes the URL, the verdict name and the signals as JSON.
const VerdictPrompt = `Explain this verdict.

URL: %s
Verdict: %s
Signals:
%s

Output STRICTLY in JSON with this schema:
{
  "classification": "<verdict>",
  "analysis_findings": "<explanation>",
  "recommended_action": "<advice>"
}`

// NoFindings is the fixed finding for a URL without risky signals.
const NoFindings = "No known phishing patterns detected in the URL."

// Plain-language reading of each risky signal, used by the fallback.
var signalHints = map[string]string{
	"Have_IP":       "the address uses a raw IP or hex-like host instead of a domain name",
	"Have_At":       "the URL contains characters used to hide the real destination",
	"URL_Length":    "the URL is unusually long",
	"URL_Depth":     "the path is nested several levels deep",
	"Redirection":   "the URL embeds a second address after '//'",
	"https_Domain":  "the domain name contains 'https' to look secure",
	"TinyURL":       "the URL uses a link-shortening service",
	"Prefix/Suffix": "the domain name contains a dash",
	"DNS_Record":    "no registration record could be found for the domain",
	"Web_Traffic":   "the site has little or no measurable traffic",
	"Domain_Age":    "the domain was registered recently",
	"Domain_End":    "the domain registration is close to its expiry",
	"iFrame":        "the page could not be fetched or came back with almost no markup",
	"Mouse_Over":    "the page rewrites links on mouse-over",
	"Web_Forwards":  "the page forwards through several redirects",
}
