package guard

import "strings"

// classifyRule maps a path fragment to a category. Prefix rules anchor at the
// start of the path; substring rules match anywhere.
type classifyRule struct {
	fragment string
	prefix   bool
	category Category
}

// Classifier maps request paths to endpoint categories with an ordered
// first-match rule list. It is a pure function of the path: no state, no
// side effects, safe for concurrent use.
type Classifier struct {
	rules []classifyRule
}

// NewClassifier builds the default classifier. AI routes match by prefix;
// authentication and registration endpoints appear under many mounts, so
// those signals match anywhere in the path.
func NewClassifier() *Classifier {
	return &Classifier{rules: []classifyRule{
		{fragment: "/api/ai/", prefix: true, category: CategoryAI},
		{fragment: "/ai/", prefix: true, category: CategoryAI},
		{fragment: "/login", category: CategoryAuth},
		{fragment: "/logout", category: CategoryAuth},
		{fragment: "/token", category: CategoryAuth},
		{fragment: "/refresh", category: CategoryAuth},
		{fragment: "/password", category: CategoryAuth},
		{fragment: "/register", category: CategoryRegistration},
		{fragment: "/signup", category: CategoryRegistration},
	}}
}

// Classify returns the category for a request path. Matching is
// case-insensitive and unmatched paths fall through to the general category.
func (c *Classifier) Classify(path string) Category {
	p := strings.ToLower(path)
	for _, r := range c.rules {
		if r.prefix {
			if strings.HasPrefix(p, r.fragment) {
				return r.category
			}
			continue
		}
		if strings.Contains(p, r.fragment) {
			return r.category
		}
	}
	return CategoryGeneral
}
