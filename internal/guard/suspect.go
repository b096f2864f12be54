package guard

import "strings"

// suspiciousScoreThreshold is the analyzer score at which a request earns a
// suspicious_pattern reputation penalty. The score never denies a request on
// its own.
const suspiciousScoreThreshold = 5

// commonHeaders are sent by effectively every browser; each missing one adds
// a point.
var commonHeaders = [3]string{"Accept", "Accept-Language", "Accept-Encoding"}

// botAgentFragments mark user agents of scripted clients.
var botAgentFragments = []string{
	"bot", "crawler", "spider", "scrapy", "curl", "wget", "python", "go-http",
}

// probeFragments are path fragments typical of vulnerability scanners poking
// for admin panels, leaked configs and VCS metadata.
var probeFragments = []string{
	"/admin", "/wp-admin", "/wp-login", "/phpmyadmin",
	"/.env", "/.git", "/config.", "/backup", "/etc/passwd",
}

// PatternAnalyzer scores request metadata for anomaly signals. It is a pure
// function of the request: stateless and safe for concurrent use.
type PatternAnalyzer struct{}

// NewPatternAnalyzer returns an analyzer with the built-in signal sets.
func NewPatternAnalyzer() *PatternAnalyzer { return &PatternAnalyzer{} }

// Score returns the anomaly score for a request. Signals: each missing
// common header +1, an absent or bot-like user agent +2, a probe-style path
// fragment +5.
func (a *PatternAnalyzer) Score(req Request) int {
	score := 0
	for _, h := range commonHeaders {
		if req.Header == nil || req.Header.Get(h) == "" {
			score++
		}
	}
	ua := strings.ToLower(req.UserAgent())
	if ua == "" {
		score += 2
	} else {
		for _, frag := range botAgentFragments {
			if strings.Contains(ua, frag) {
				score += 2
				break
			}
		}
	}
	path := strings.ToLower(req.Path)
	for _, frag := range probeFragments {
		if strings.Contains(path, frag) {
			score += 5
			break
		}
	}
	return score
}

// Suspicious reports whether a score crosses the penalty threshold.
func (a *PatternAnalyzer) Suspicious(score int) bool {
	return score >= suspiciousScoreThreshold
}
