package grounding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMultipleBoxes(t *testing.T) {
	result := Parse("Total<|ref|>Total<|/ref|><|det|>[[10,10,50,50],[600,600,650,650]]<|/det|> due")

	require.Equal(t, "Total due", result.Text)
	require.Len(t, result.Detections, 1)
	require.Zero(t, result.Malformed)

	d := result.Detections[0]
	require.Equal(t, "Total", d.Label)
	require.Equal(t, []Box{{10, 10, 50, 50}, {600, 600, 650, 650}}, d.Boxes())

	require.Len(t, d.Occurrences, 1)
	require.Equal(t, 5, d.Occurrences[0].Offset)
	require.Equal(t, Span{Start: 5, End: 73}, d.Occurrences[0].Span)
}

func TestParseWrongArity(t *testing.T) {
	result := Parse("Total<|ref|>Total<|/ref|><|det|>[10,10,50]<|/det|> due")

	require.Equal(t, "Total due", result.Text)
	require.Empty(t, result.Detections)
	require.Equal(t, 1, result.Malformed)
}

func TestParseSingleBox(t *testing.T) {
	result := Parse("<|ref|>logo<|/ref|><|det|>[1, 2, 3.5, 4.25]<|/det|>")

	require.Equal(t, "", result.Text)
	require.Len(t, result.Detections, 1)
	require.Equal(t, []Box{{1, 2, 3.5, 4.25}}, result.Detections[0].Boxes())
}

func TestParseSingleAndNestedAreEquivalent(t *testing.T) {
	flat := Parse("<|ref|>a<|/ref|><|det|>[1,2,3,4]<|/det|>")
	nested := Parse("<|ref|>a<|/ref|><|det|>[[1,2,3,4]]<|/det|>")

	require.Equal(t, flat.Detections[0].Boxes(), nested.Detections[0].Boxes())
}

func TestParseMergesIdenticalLabels(t *testing.T) {
	input := "<|ref|>x<|/ref|><|det|>[1,1,5,5]<|/det|> and <|ref|>x<|/ref|><|det|>[6,6,9,9]<|/det|> and <|ref|>X<|/ref|><|det|>[1,1,2,2]<|/det|>"

	result := Parse(input)

	require.Equal(t, "and and", result.Text)
	require.Len(t, result.Detections, 2)

	require.Equal(t, "x", result.Detections[0].Label)
	require.Len(t, result.Detections[0].Occurrences, 2)
	require.Equal(t, 0, result.Detections[0].Occurrences[0].Offset)
	require.Equal(t, 4, result.Detections[0].Occurrences[1].Offset)

	require.Equal(t, "X", result.Detections[1].Label)
	require.Equal(t, 7, result.Detections[1].Occurrences[0].Offset)
}

func TestParseDropsDegenerateBoxes(t *testing.T) {
	result := Parse("<|ref|>a<|/ref|><|det|>[[5,5,1,1],[1,1,5,5],[3,3,3,9]]<|/det|>")

	require.Equal(t, 2, result.Dropped)
	require.Zero(t, result.Malformed)
	require.Equal(t, []Box{{1, 1, 5, 5}}, result.Detections[0].Boxes())

	result = Parse("<|ref|>a<|/ref|><|det|>[5,5,1,1]<|/det|> rest")

	require.Equal(t, "rest", result.Text)
	require.Empty(t, result.Detections)
	require.Equal(t, 1, result.Dropped)
}

func TestParseMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty list", "[]"},
		{"non numeric", `[["a",1,2,3]]`},
		{"object", `{"x":1}`},
		{"bare number", "42"},
		{"nested arity", "[[1,2,3,4],[1,2,3]]"},
		{"mixed", "[[1,2,3,4],5]"},
		{"garbage", "[[1,2,3,4]"},
		{"python tuple", "[(1,2,3,4)]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse("A <|ref|>x<|/ref|><|det|>" + tt.payload + "<|/det|> B")

			require.Equal(t, "A B", result.Text)
			require.Empty(t, result.Detections)
			require.Equal(t, 1, result.Malformed)
		})
	}
}

func TestParseContinuesAfterBrokenTag(t *testing.T) {
	input := "<|ref|>bad<|/ref|><|det|>[1,2]<|/det|> one <|ref|>good<|/ref|><|det|>[[1,1,9,9]]<|/det|> two"

	result := Parse(input)

	require.Equal(t, "one two", result.Text)
	require.Equal(t, 1, result.Malformed)
	require.Len(t, result.Detections, 1)
	require.Equal(t, "good", result.Detections[0].Label)
}

func TestParseUnterminated(t *testing.T) {
	t.Run("coordinate tag", func(t *testing.T) {
		result := Parse("A <|ref|>x<|/ref|><|det|>[[1,2\nB")

		require.Equal(t, "A\nB", result.Text)
		require.Equal(t, 1, result.Malformed)
		require.Empty(t, result.Detections)
	})

	t.Run("coordinate tag before next tag", func(t *testing.T) {
		result := Parse("<|ref|>x<|/ref|><|det|>[[1,2 <|ref|>y<|/ref|><|det|>[[1,1,9,9]]<|/det|>\nB")

		require.Equal(t, 1, result.Malformed)
		require.Empty(t, result.Detections)
		require.Equal(t, "B", result.Text)
	})

	t.Run("label", func(t *testing.T) {
		result := Parse("see <|ref|>note")

		require.Equal(t, "see note", result.Text)
		require.Equal(t, 1, result.Malformed)
	})
}

func TestParseWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"collapse blanks", "a <|ref|>x<|/ref|><|det|>[1,1,5,5]<|/det|> b", "a b"},
		{"before punctuation", "Pay <|ref|>x<|/ref|><|det|>[1,1,5,5]<|/det|>.", "Pay."},
		{"before comma", "one <|ref|>x<|/ref|><|det|>[1,1,5,5]<|/det|>, two", "one, two"},
		{"end of line", "a <|ref|>x<|/ref|><|det|>[1,1,5,5]<|/det|>\nb", "a\nb"},
		{"space between tags", "<|ref|>x<|/ref|> <|det|>[1,1,5,5]<|/det|>word", "word"},
		{"whole lines", "<|ref|>title<|/ref|><|det|>[[1,1,9,9]]<|/det|>\n# Heading\n\n<|ref|>text<|/ref|><|det|>[[1,10,9,20]]<|/det|>\nBody", "# Heading\n\nBody"},
		{"crlf lines", "<|ref|>t<|/ref|><|det|>[[1,1,9,9]]<|/det|>\r\nBody", "Body"},
		{"grounding marker", "<|grounding|>Convert this", "Convert this"},
		{"label without coordinates", "see <|ref|>note<|/ref|> here", "see note here"},
		{"orphan coordinates", "a <|det|>[1,1,5,5]<|/det|> b", "a b"},
		{"stray closers", "a<|/ref|>b<|/det|>c", "abc"},
		{"separator before separator", "Items: <|ref|>a<|/ref|><|det|>[1,1,5,5]<|/det|>, <|ref|>b<|/ref|><|det|>[6,6,9,9]<|/det|>.", "Items."},
		{"separator before period", "Total: <|ref|>x<|/ref|><|det|>[1,1,5,5]<|/det|>.", "Total."},
		{"separators around gap", "a, <|ref|>x<|/ref|><|det|>[1,1,5,5]<|/det|>; b", "a, b"},
		{"emptied parentheses", "see (<|ref|>fig<|/ref|><|det|>[1,1,5,5]<|/det|>) here", "see here"},
		{"emptied brackets", "[<|ref|>x<|/ref|><|det|>[1,1,5,5]<|/det|>] end", "end"},
		{"kept parentheses", "(see <|ref|>x<|/ref|><|det|>[1,1,5,5]<|/det|>)", "(see)"},
		{"unknown tag", "x <|eos|> y", "x <|eos|> y"},
		{"no tags", "  plain text  ", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Parse(tt.input).Text)
		})
	}
}

func TestParseOffsets(t *testing.T) {
	input := "<|ref|>title<|/ref|><|det|>[[1,1,9,9]]<|/det|>\n# Heading\n\n<|ref|>image<|/ref|><|det|>[[1,10,9,20]]<|/det|>\nBody"

	result := Parse(input)

	require.Equal(t, "# Heading\n\nBody", result.Text)
	require.Equal(t, 0, result.Detections[0].Occurrences[0].Offset)
	require.Equal(t, 11, result.Detections[1].Occurrences[0].Offset)
}

func TestParseReinsertLeavesNoDelimiters(t *testing.T) {
	inputs := []string{
		"Total<|ref|>Total<|/ref|><|det|>[[10,10,50,50],[600,600,650,650]]<|/det|> due",
		"<|grounding|><|ref|>title<|/ref|><|det|>[[1,1,9,9]]<|/det|>\n# Heading\n<|ref|>x<|/ref|><|det|>[1,2]<|/det|> tail",
		"a <|ref|>x<|/ref|><|det|>[[1,2\nb <|ref|>y<|/ref|><|det|>[[1,1,2,2]]<|/det|>.",
		"<|ref|>a<|/ref|><|det|>[1,1,5,5]<|/det|><|ref|>a<|/ref|><|det|>[6,6,9,9]<|/det|>",
	}

	for _, input := range inputs {
		result := Parse(input)

		var insertions []Insertion

		for _, d := range result.Detections {
			for _, o := range d.Occurrences {
				require.GreaterOrEqual(t, o.Offset, 0)
				require.LessOrEqual(t, o.Offset, len(result.Text))

				insertions = append(insertions, Insertion{
					Offset: o.Offset,
					Text:   "[" + d.Label + "]",
				})
			}
		}

		text := Insert(result.Text, insertions)

		for _, tag := range []string{tagRefOpen, tagRefClose, tagDetOpen, tagDetClose, tagGrounding} {
			require.False(t, strings.Contains(text, tag), "leftover %s in %q", tag, text)
		}

		for _, d := range result.Detections {
			require.Contains(t, text, "["+d.Label+"]")
		}
	}
}

func TestInsertKeepsOrder(t *testing.T) {
	text := Insert("abc", []Insertion{
		{Offset: 3, Text: "3"},
		{Offset: 1, Text: "x"},
		{Offset: 1, Text: "y"},
		{Offset: 99, Text: "!"},
	})

	require.Equal(t, "axybc3!", text)
}

func TestParsePunctuationOffsets(t *testing.T) {
	result := Parse("Items: <|ref|>a<|/ref|><|det|>[1,1,5,5]<|/det|>, <|ref|>b<|/ref|><|det|>[6,6,9,9]<|/det|>. Done")

	require.Equal(t, "Items. Done", result.Text)
	require.Len(t, result.Detections, 2)

	require.Equal(t, 5, result.Detections[0].Occurrences[0].Offset)
	require.Equal(t, 5, result.Detections[1].Occurrences[0].Offset)
}
