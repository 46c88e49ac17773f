package pipeline

import (
	"log"
	"regexp"
	"strconv"

	"github.com/relay-dev/relay/pkg/models"
)

// Agents embed structured signals in otherwise free-text output:
//
//	<route next="security" reason="auth code touched"/>
//	<approve/>
//	<reject reason="wrong approach"/>
//	<cost usd="0.42"/>
var (
	routeRe   = regexp.MustCompile(`<route\s+next="([^"]*)"(?:\s+reason="([^"]*)")?\s*/>`)
	approveRe = regexp.MustCompile(`<approve\s*/>`)
	rejectRe  = regexp.MustCompile(`<reject(?:\s+reason="([^"]*)")?\s*/>`)
	costRe    = regexp.MustCompile(`<cost\s+usd="([^"]*)"\s*/>`)
	// routeAnyRe matches route tags loosely enough to spot malformed ones.
	routeAnyRe = regexp.MustCompile(`<route\b[^>]*>`)
)

// Directive is a routing override extracted from agent output.
type Directive struct {
	// Next is the role the agent asked to run next.
	Next models.Role
	// Reason is the agent's stated reason for the override.
	Reason string
}

// String renders the directive for step records.
func (d Directive) String() string {
	if d.Reason == "" {
		return string(d.Next)
	}
	return string(d.Next) + ": " + d.Reason
}

// ExtractDirective parses a routing directive out of agent output.
// Malformed tags and unknown roles are treated as "no directive found"
// and logged as anomalies, never a hard failure.
func ExtractDirective(output string) *Directive {
	m := routeRe.FindStringSubmatch(output)
	if m == nil {
		if routeAnyRe.MatchString(output) {
			log.Printf("[pipeline] ignoring malformed route tag in agent output")
		}
		return nil
	}

	role := models.Role(m[1])
	if !role.Valid() {
		log.Printf("[pipeline] ignoring route directive naming unknown role %q", m[1])
		return nil
	}
	return &Directive{Next: role, Reason: m[2]}
}

// Approved returns true if the output carries an explicit approval signal.
func Approved(output string) bool {
	return approveRe.MatchString(output)
}

// Rejection returns the rejection reason and true if the output carries
// an explicit rejection signal.
func Rejection(output string) (string, bool) {
	m := rejectRe.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	reason := m[1]
	if reason == "" {
		reason = "rejected by agent"
	}
	return reason, true
}

// ExtractCost parses an optional per-step cost report in USD. A missing
// or malformed tag contributes zero.
func ExtractCost(output string) float64 {
	m := costRe.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	usd, err := strconv.ParseFloat(m[1], 64)
	if err != nil || usd < 0 {
		log.Printf("[pipeline] ignoring malformed cost tag %q", m[1])
		return 0
	}
	return usd
}
