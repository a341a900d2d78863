package rewrite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/templatemail/internal/templates"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

type failingSaver struct{}

func (failingSaver) SaveEdited(string, string) (string, error) {
	return "", errors.New("disk full")
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("<p>Hello World</p>", "change greeting to Hello Sam")

	assert.True(t, strings.HasPrefix(prompt, "You are an expert HTML editor."))
	assert.Contains(t, prompt, "Preserve all HTML tags, attributes, and the overall layout.")
	assert.Contains(t, prompt, "\n\nGiven the following HTML template:\n\n```html\n<p>Hello World</p>\n```\n\n")
	assert.Contains(t, prompt, "Please apply the following changes: change greeting to Hello Sam")
	assert.True(t, strings.HasSuffix(prompt, "Remember to only output the full, raw, modified HTML content."))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence is trimmed identity", "  <p>ok</p>\n", "<p>ok</p>"},
		{"html fence with newlines", "```html\n<p>Hello Sam</p>\n```", "<p>Hello Sam</p>"},
		{"html fence without newlines", "```html<p>x</p>```", "<p>x</p>"},
		{"html fence surrounded by whitespace", "\n ```html\n<b>y</b>\n```  ", "<b>y</b>"},
		{"bare fence", "```\n<div>z</div>\n```", "<div>z</div>"},
		{"fence only at start", "```html\n<p>a</p>", "```html\n<p>a</p>"},
		{"plain refusal", "I cannot do that", "I cannot do that"},
		{"empty", "", ""},
		{"lone fence", "```", ""},
		{"four backticks", "````", ""},
		{"five backticks", "`````", ""},
		{"empty html fence", "```html```", ""},
		{"empty html fence with newline", "```html\n```", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, LooksLikeHTML("<p>ok</p>"))
	assert.True(t, LooksLikeHTML("<br>"))
	assert.False(t, LooksLikeHTML("not html"))
	assert.False(t, LooksLikeHTML(""))
	assert.False(t, LooksLikeHTML("<p>unterminated"))
	assert.False(t, LooksLikeHTML("text</p>"))
}

func TestDiagnostic(t *testing.T) {
	short := "I cannot do that"
	assert.Equal(t, short, Diagnostic(short))

	long := strings.Repeat("ä", 250)
	got := Diagnostic(long)
	assert.Equal(t, 200, len([]rune(got)))
	assert.Equal(t, strings.Repeat("ä", 200), got)
}

func newStore(t *testing.T, at time.Time) (*templates.Store, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "welcome.html"), []byte("<p>Hello World</p>"), 0o644))
	return templates.NewStore(dir).WithClock(func() time.Time { return at }), dir
}

func TestRewriter_AcceptsFencedOutput(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	store, dir := newStore(t, at)
	gen := &fakeGenerator{response: "```html\n<p>Hello Sam</p>\n```"}

	result, err := NewRewriter(gen, store).Rewrite(context.Background(), Request{
		TemplateName: "welcome.html",
		Original:     "<p>Hello World</p>",
		Instruction:  "change greeting to Hello Sam",
	})
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Equal(t, "<p>Hello Sam</p>", result.HTML)
	assert.Equal(t, "welcome_ai_edited_20240501_123045.html", result.SavedAs)

	saved, err := os.ReadFile(filepath.Join(dir, result.SavedAs))
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello Sam</p>", string(saved))

	original, err := os.ReadFile(filepath.Join(dir, "welcome.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello World</p>", string(original))

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "<p>Hello World</p>")
}

func TestRewriter_RejectsNonHTML(t *testing.T) {
	store, dir := newStore(t, time.Now())
	gen := &fakeGenerator{response: "I cannot do that"}

	result, err := NewRewriter(gen, store).Rewrite(context.Background(), Request{
		TemplateName: "welcome.html",
		Original:     "<p>Hello World</p>",
		Instruction:  "make it rhyme",
	})
	assert.Nil(t, result)

	var invalid *InvalidOutputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "I cannot do that", invalid.Diagnostic)
	assert.Contains(t, err.Error(), "I cannot do that")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no file may be written for rejected output")
}

func TestRewriter_GenerationFailure(t *testing.T) {
	store, _ := newStore(t, time.Now())
	gen := &fakeGenerator{err: errors.New("quota exceeded")}

	_, err := NewRewriter(gen, store).Rewrite(context.Background(), Request{
		TemplateName: "welcome.html",
		Original:     "<p>Hello World</p>",
		Instruction:  "shorten",
	})
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Len(t, gen.prompts, 1, "generation must not be retried")
}

func TestRewriter_InputValidation(t *testing.T) {
	store, _ := newStore(t, time.Now())
	gen := &fakeGenerator{response: "<p>x</p>"}
	rw := NewRewriter(gen, store)

	_, err := rw.Rewrite(context.Background(), Request{TemplateName: "welcome.html", Original: "<p>a</p>", Instruction: "   "})
	assert.ErrorIs(t, err, ErrEmptyInstruction)

	_, err = rw.Rewrite(context.Background(), Request{TemplateName: "welcome.html", Original: "", Instruction: "shorten"})
	assert.ErrorIs(t, err, ErrEmptyTemplate)

	_, err = rw.Rewrite(context.Background(), Request{Original: "<p>a</p>", Instruction: "shorten"})
	assert.ErrorIs(t, err, ErrEmptyTemplate)

	assert.Empty(t, gen.prompts)
}

func TestRewriter_SaveFailureKeepsResult(t *testing.T) {
	gen := &fakeGenerator{response: "<p>new</p>"}

	result, err := NewRewriter(gen, failingSaver{}).Rewrite(context.Background(), Request{
		TemplateName: "welcome.html",
		Original:     "<p>old</p>",
		Instruction:  "update",
	})
	assert.ErrorIs(t, err, ErrSaveFailed)
	require.NotNil(t, result)
	assert.Equal(t, "<p>new</p>", result.HTML)
	assert.Empty(t, result.SavedAs)
}
