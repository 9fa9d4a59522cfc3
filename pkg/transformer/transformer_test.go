package transformer

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Transform(t *testing.T) {
	tr := New(0.43, 128)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"sentence with punctuation", "Bionic reading helps.", "<b>Bio</b>nic <b>rea</b>ding <b>he</b>lps."},
		{"url passes through", "Visit https://example.com/path now", "<b>Vi</b>sit https://example.com/path <b>n</b>ow"},
		{"time and date pass through", "Call me at 12:30 on 2024-01-15", "<b>Ca</b>ll <b>m</b>e <b>a</b>t 12:30 <b>o</b>n 2024-01-15"},
		{"escapes markup characters", "Tom & Jerry", "<b>T</b>om &amp; <b>Je</b>rry"},
		{"hyphenated compound", "a self-taught coder", "a <b>se</b>lf-<b>tau</b>ght <b>co</b>der"},
		{"whitespace runs are kept", "one  \n two", "<b>o</b>ne  \n <b>t</b>wo"},
		{"numbers and versions", "12,345.67% v2.5.0 report.pdf", "12,345.67% v2.5.0 report.pdf"},
		{"too short", "hi", "hi"},
		{"punctuation only", "... --- !!!", "... --- !!!"},
		{"nothing to mark", "x & y < z", "x &amp; y &lt; z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Transform(tt.input))
		})
	}
}

func TestSegments_ReportsChange(t *testing.T) {
	tr := New(0.43, 0)

	segs, changed := tr.Segments("x & y")
	assert.False(t, changed)
	require.Len(t, segs, 1)
	assert.Equal(t, "x & y", segs[0].Text)

	_, changed = tr.Segments("streamed answer")
	assert.True(t, changed)
}

func TestSegments_CacheDoesNotLeakBetweenCalls(t *testing.T) {
	tr := New(0.43, 16)
	first := tr.Transform("reading reading")
	second := tr.Transform("reading reading")
	assert.Equal(t, first, second)
	assert.Equal(t, "<b>rea</b>ding <b>rea</b>ding", second)
}

var alphabet = []string{
	"a", "b", "Z", "é", "é", "ß", "ж", "Ω", "字", "ع", "0", "7",
	"-", "--", ".", ",", "!", "?", "'", "\"", "(", ")", "<", ">", "&", ";",
	"%", ":", "/", "@", "http://", "www.", "v1.2", " ", " ", "  ", "\t", "\n",
}

func randomText(r *rand.Rand) string {
	var b strings.Builder
	n := r.Intn(40)
	for i := 0; i < n; i++ {
		b.WriteString(alphabet[r.Intn(len(alphabet))])
	}
	return b.String()
}

func TestTransform_RoundTrip(t *testing.T) {
	tr := New(0.43, 64)
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 5000; i++ {
		input := randomText(r)
		out := tr.Transform(input)
		require.Equal(t, input, StripMarkup(out), "transform output %q", out)
	}
}

func TestTransform_RoundTripAcrossRatios(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for _, ratio := range []float64{0.1, 0.43, 0.9} {
		tr := New(ratio, 0)
		for i := 0; i < 500; i++ {
			input := randomText(r)
			require.Equal(t, input, StripMarkup(tr.Transform(input)))
		}
	}
}

func TestNew_InvalidRatioFallsBack(t *testing.T) {
	assert.Equal(t, 0.43, New(0, 0).Ratio())
	assert.Equal(t, 0.43, New(1.5, 0).Ratio())
	assert.Equal(t, 0.3, New(0.3, 0).Ratio())
}
