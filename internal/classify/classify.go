// Package classify maps captured terminal text to at most one prompt
// category. Classification is a pure function of the text: an ordered rule
// list is evaluated with the denylist always first, and the first matching
// rule wins.
package classify

import (
	"regexp"
	"strings"

	"github.com/agent-pilot/responderd/internal/policy"
)

// Match describes a classified prompt.
type Match struct {
	Category policy.Category
	// Matched is the substring that triggered the rule.
	Matched string
	// Response is the key the agent expects for "yes" on this prompt form.
	Response string
	// PersistentResponse, when set, is the key that also suppresses future
	// prompts of this kind ("yes and don't ask again"). Only high-trust
	// presets should use it.
	PersistentResponse string
}

type rule struct {
	category           policy.Category
	expr               *regexp.Regexp
	response           string
	persistentResponse string
}

// Prompt forms the monitored agent is known to emit, grouped by category.
// Rule order matters: the persistent-choice form must precede the plain
// numbered confirmation it would otherwise shadow.
var categoryRules = []rule{
	{
		category:           policy.CategoryGeneralConfirmation,
		expr:               regexp.MustCompile(`(?im)1\.\s*yes\s*2\.\s*yes and don't ask again\s*3\.\s*no`),
		response:           "1",
		persistentResponse: "2",
	},
	{policy.CategoryFileOperation, regexp.MustCompile(`(?im)apply these changes\?|save file\?|create file\?|overwrite file\?|write to file\?`), "1", ""},
	{policy.CategoryCommandExecution, regexp.MustCompile(`(?im)execute this command\?|run this script\?|execute in terminal\?|run command\?`), "1", ""},
	{policy.CategoryGitOperation, regexp.MustCompile(`(?im)commit changes\?|push to repository\?|create branch\?|merge branch\?`), "1", ""},
	{policy.CategoryPackageManagement, regexp.MustCompile(`(?im)install package\?|update dependencies\?|add to package\.json\?|install npm package\?`), "1", ""},
	{policy.CategoryContinueOperation, regexp.MustCompile(`(?im)do you want to continue\?|do you want to proceed\?|continue with this action\?`), "1", ""},
	{policy.CategoryGeneralConfirmation, regexp.MustCompile(`(?im)1\.\s*yes\s*2\.\s*no|confirm\?\s*\(yes/no\)|continue\?\s*\(y/n\)|proceed\?\s*\(yes/no\)`), "1", ""},
}

// Classifier evaluates the denylist and category rules against text.
type Classifier struct {
	denylist func() *policy.Denylist
}

// New builds a classifier. The denylist is fetched per call so a policy
// reload takes effect without rebuilding monitors.
func New(denylist func() *policy.Denylist) *Classifier {
	return &Classifier{denylist: denylist}
}

// Classify returns the category for text, or ok=false when the text is not
// a recognizable prompt. Denylist patterns are checked before any category
// rule, so text matching both is always dangerous.
func (c *Classifier) Classify(text string) (Match, bool) {
	normalized := Normalize(text)
	if normalized == "" {
		return Match{}, false
	}

	// Denylist rules come before every category rule, so text matching
	// both a benign pattern and a denylist pattern is always dangerous.
	if label, dangerous, ok := c.denylist().Match(normalized); ok {
		return Match{
			Category: policy.CategoryDangerousOperation,
			Matched:  label + ": " + dangerous,
		}, true
	}

	for i := range categoryRules {
		if m := categoryRules[i].expr.FindString(normalized); m != "" {
			r := &categoryRules[i]
			return Match{
				Category:           r.category,
				Matched:            strings.TrimSpace(m),
				Response:           r.response,
				PersistentResponse: r.persistentResponse,
			}, true
		}
	}

	return Match{}, false
}

var (
	ansiPattern  = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	spacePattern = regexp.MustCompile(`[ \t]+`)
)

// Normalize strips ANSI escapes and collapses horizontal whitespace so the
// same rendered prompt always yields the same text (and fingerprint),
// whatever the pane width or colour settings.
func Normalize(text string) string {
	text = ansiPattern.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
