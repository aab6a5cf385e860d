package chunker

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/llm"
)

// fakeStream replays items; an item with a non-nil err is returned as an error.
type fakeStream struct {
	items  []item
	pos    int
	closes int
}

type item struct {
	text string
	err  error
}

func (f *fakeStream) Recv() (string, error) {
	if f.pos >= len(f.items) {
		return "", io.EOF
	}
	it := f.items[f.pos]
	f.pos++
	return it.text, it.err
}

func (f *fakeStream) Close() error {
	f.closes++
	return nil
}

func textStream(fragments ...string) *fakeStream {
	f := &fakeStream{}
	for _, s := range fragments {
		f.items = append(f.items, item{text: s})
	}
	return f
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func collect(t *testing.T, c *Chunker, s llm.Stream) []string {
	t.Helper()
	msgs, err := c.Collect(context.Background(), s)
	require.NoError(t, err)
	return msgs
}

func TestMessages_SentenceBoundaries(t *testing.T) {
	c := New(Options{MinLength: 5})
	want := []string{"Hello world.", "How are you?"}

	fragmentations := map[string][]string{
		"words":  {"Hello", " world.", " How", " are", " you?", " "},
		"whole":  {"Hello world. How are you? "},
		"chars":  chars("Hello world. How are you? "),
		"uneven": {"Hel", "lo world. Ho", "w are you? "},
	}
	for name, fragments := range fragmentations {
		t.Run(name, func(t *testing.T) {
			s := textStream(fragments...)
			require.Equal(t, want, collect(t, c, s))
			require.Equal(t, 1, s.closes)
		})
	}
}

func TestMessages_FenceIsAtomic(t *testing.T) {
	c := New(Options{MinLength: 5})
	want := []string{"intro", "```line1\nline2```", "outro."}

	for name, fragments := range map[string][]string{
		"whole": {"intro ```line1\nline2``` outro."},
		"chars": chars("intro ```line1\nline2``` outro."),
		"split": {"intro `", "``line1", "\nline2`", "`` outro."},
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, want, collect(t, c, textStream(fragments...)))
		})
	}
}

func TestMessages_ShortSegmentsMerge(t *testing.T) {
	c := New(Options{MinLength: 10})
	got := collect(t, c, textStream("Ok. Sure. That works for me.\nNext"))
	require.Equal(t, []string{"Ok. Sure. That works for me.", "Next"}, got)
}

func TestMessages_FinalFlushIgnoresFloor(t *testing.T) {
	c := New(Options{MinLength: 50})
	require.Equal(t, []string{"tiny."}, collect(t, c, textStream("tiny.")))
	require.Empty(t, collect(t, c, textStream("  ", "\n")))
}

func TestMessages_UnterminatedFenceFlushedWhole(t *testing.T) {
	c := New(Options{MinLength: 1})
	got := collect(t, c, textStream("look: ```go\nfmt.Println(1)\n"))
	require.Equal(t, []string{"look:", "```go\nfmt.Println(1)"}, got)
}

func TestMessages_SkipsParseErrors(t *testing.T) {
	s := &fakeStream{items: []item{
		{text: "first part "},
		{err: apperr.Parse("test", errors.New("bad chunk"))},
		{text: "continues."},
	}}
	got := collect(t, New(Options{MinLength: 1}), s)
	require.Equal(t, []string{"first part continues."}, got)
}

func TestMessages_GenerationErrorEndsSequence(t *testing.T) {
	boom := apperr.Generation("test", errors.New("connection reset"))
	s := &fakeStream{items: []item{
		{text: "Complete sentence here."},
		{text: "dangling"},
		{err: boom},
		{text: "never read."},
	}}

	msgs, err := New(Options{MinLength: 1}).Collect(context.Background(), s)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"Complete sentence here."}, msgs)
	require.Equal(t, 1, s.closes)
}

func TestMessages_EarlyBreakClosesStream(t *testing.T) {
	s := textStream("One. Two. Three.")
	c := New(Options{MinLength: 1})

	var got []string
	for m, err := range c.Messages(context.Background(), s) {
		require.NoError(t, err)
		got = append(got, m)
		break
	}
	require.Equal(t, []string{"One."}, got)
	require.Equal(t, 1, s.closes)
}

func TestMessages_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := textStream("never.")

	_, err := New(Options{}).Collect(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, s.closes)
	require.Zero(t, s.pos, "stream not consumed after cancel")
}

func TestMessages_PacerRunsPerMessage(t *testing.T) {
	var paced int
	c := New(Options{MinLength: 1, Pacer: func(context.Context) error {
		paced++
		return nil
	}})
	require.Len(t, collect(t, c, textStream("A. B. C.")), 3)
	require.Equal(t, 3, paced)
}

func TestRandomPacer(t *testing.T) {
	require.Nil(t, RandomPacer(0, 0))

	p := RandomPacer(time.Millisecond, 2*time.Millisecond)
	start := time.Now()
	require.NoError(t, p(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, RandomPacer(time.Hour, time.Hour)(ctx), context.Canceled)
}

func TestWithMinLength(t *testing.T) {
	c := New(Options{MinLength: 100})
	got := collect(t, c.WithMinLength(0), textStream("a. b."))
	require.Equal(t, []string{"a.", "b."}, got)
}

func TestPartialSuffix(t *testing.T) {
	require.Equal(t, 2, partialSuffix("abc``", "```"))
	require.Equal(t, 0, partialSuffix("abc", "```"))
	require.Equal(t, 0, partialSuffix(strings.Repeat("`", 3), "```"[:1]))
}

func TestMessages_FenceIgnoresBoundariesInside(t *testing.T) {
	c := New(Options{MinLength: 1})
	got := collect(t, c, textStream("Try this. ```a. b?\nc.``` Done."))
	require.Equal(t, []string{"Try this.", "```a. b?\nc.```", "Done."}, got)
}
