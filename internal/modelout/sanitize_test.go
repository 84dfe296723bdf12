package modelout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRepairs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare imes", "2 imes 3?", `2 \times 3?`},
		{"bare times between digits", "What is 4 times 5?", `What is 4 \times 5?`},
		{"x between digits", "3 x 4 = 12", `3 \times 4 = 12`},
		{"literal escaped tab", `a\t= b`, "a = b"},
		{"raw tab", "a\tb", "a b"},
		{"literal escaped newline", `line one\n- line two`, "line one\n- line two"},
		{"dropped frac backslash", "rac{1}{2}", `\frac{1}{2}`},
		{"unescaped frac", "frac{1}{2}", `\frac{1}{2}`},
		{"dropped theta backslash", `\sin(heta)`, `\sin(\theta)`},
		{"pi after digit", "circumference is 2 pi r", `circumference is 2\pi r`},
		{"dropped rightarrow backslash", `A ightarrow B`, `A \rightarrow B`},
		{"degrees with unit", "water boils at 100 degrees C", `water boils at 100^\circ C`},
		{"degree sign", "a 90° angle", `a 90^\circ  angle`},
		{"equilibrium constant", "solve for Keq here", `solve for K_{eq} here`},
		{"water", "2 H2O molecules", `2 H_2O molecules`},
		{"carbon dioxide", "CO2 levels", `CO_2 levels`},
		{"boldsymbol wrapper", `\boldsymbol{v} = at`, `{v} = at`},
		{"displaystyle wrapper", `\displaystyle\frac{1}{2}`, `\frac{1}{2}`},
		{"hallucinated oldtext wrapper", `\oldtext{answer}`, `{answer}`},
		{"doubled arrow braces", `\xrightarrow{{heat}}`, `\xrightarrow{heat}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizeLeavesCleanTextAlone(t *testing.T) {
	clean := []string{
		"",
		"Plain prose with no markup at all.",
		`The area is $\frac{1}{2} b h$.`,
		`$2 \times 3 = 6$`,
		`$\theta + \pi$`,
		`rate \rightarrow product`,
		"times flies when you read exam questions",
	}
	for _, s := range clean {
		assert.Equal(t, s, Sanitize(s), "input %q", s)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"2 imes 3?",
		"rac{1}{2} of 100 degrees C",
		`\boldsymbol{F} = ma`,
		`A ightarrow B ightarrow C`,
		"mix of Keq, H2O and CO2",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
	}
}

func TestSanitizeAny(t *testing.T) {
	assert.Equal(t, `2 \times 3?`, SanitizeAny("2 imes 3?"))
	assert.Equal(t, "", SanitizeAny(nil))
	assert.Equal(t, "", SanitizeAny(42))
	assert.Equal(t, "", SanitizeAny([]string{"not", "text"}))
}
