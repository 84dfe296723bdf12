package modelout

import "regexp"

// rule is one substitution in the sanitizer pipeline. Rules run in table
// order; no rule may reintroduce a pattern an earlier rule already matched.
type rule struct {
	re  *regexp.Regexp
	rep string
}

// sanitizeRules repairs the malformed LaTeX that models habitually emit in
// question and note text: command backslashes swallowed by string escaping
// (\times arriving as a tab plus "imes"), bare command names, invented
// shorthand, and decorative wrappers the renderer does not support.
var sanitizeRules = []rule{
	// Stray escape and control artifacts. A literal \t or \n in running
	// text is an escaping accident unless it starts a real command name.
	{regexp.MustCompile(`\\t([^a-zA-Z]|$)`), " ${1}"},
	{regexp.MustCompile("\t"), " "},
	{regexp.MustCompile(`\\n([^a-zA-Z]|$)`), "\n${1}"},

	// Commands that lost their backslash, or never had one.
	{regexp.MustCompile(`(^|[^a-zA-Z\\])frac\{`), `${1}\frac{`},
	{regexp.MustCompile(`(^|[^a-zA-Z\\])rac\{`), `${1}\frac{`},
	{regexp.MustCompile(`(^|[^a-zA-Z\\])imes($|[^a-zA-Z])`), `${1}\times${2}`},
	{regexp.MustCompile(`([0-9])\s*times\s*([0-9])`), `${1} \times ${2}`},
	{regexp.MustCompile(`([0-9])\s*[x×]\s*([0-9])`), `${1} \times ${2}`},
	{regexp.MustCompile(`(^|[^a-zA-Z\\])heta($|[^a-zA-Z])`), `${1}\theta${2}`},
	{regexp.MustCompile(`([0-9])\s*pi($|[^a-zA-Z])`), `${1}\pi${2}`},
	{regexp.MustCompile(`(^|[^a-zA-Z\\])ightarrow`), `${1}\rightarrow`},
	{regexp.MustCompile(`(^|[^a-zA-Z\\])eftarrow`), `${1}\leftarrow`},
	{regexp.MustCompile(`([0-9])\s*degrees?\s+(C|F|K|Celsius|Fahrenheit|Kelvin)\b`), `${1}^\circ ${2}`},
	{regexp.MustCompile(`°`), `^\circ `},

	// Chemistry shorthand the model writes as plain text.
	{regexp.MustCompile(`(^|[^_{a-zA-Z])Keq($|[^a-zA-Z])`), `${1}K_{eq}${2}`},
	{regexp.MustCompile(`\bH2O\b`), `H_2O`},
	{regexp.MustCompile(`\bCO2\b`), `CO_2`},

	// Wrappers the renderer rejects. Only the command token is deleted;
	// the braced argument stays and renders as a plain group.
	{regexp.MustCompile(`\\boldsymbol`), ``},
	{regexp.MustCompile(`\\displaystyle`), ``},
	{regexp.MustCompile(`\\oldtext`), ``},

	// Doubled braces left on arrow arguments after wrapper deletion.
	{regexp.MustCompile(`(\\rightarrow|\\leftarrow|\\xrightarrow|\\xleftarrow|\\Rightarrow|\\Leftarrow)\{\{([^{}]*)\}\}`), `${1}{${2}}`},
}

// Sanitize rewrites known-malformed math markup in s into a form the
// renderer accepts. It is total and idempotent on clean text; patterns it
// does not recognize pass through unchanged and render literally downstream.
func Sanitize(s string) string {
	for _, r := range sanitizeRules {
		s = r.re.ReplaceAllString(s, r.rep)
	}
	return s
}

// SanitizeAny sanitizes fields decoded into any. Non-string values map to
// the empty string.
func SanitizeAny(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Sanitize(s)
}
