package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMarkdown_EmptyInput(t *testing.T) {
	s := mustSplitter(t, Config{PreserveHeaders: true})
	for _, input := range []string{"", "   \n\t", "# Heading only\n## And another\n"} {
		if got := s.SplitMarkdown(input); len(got) != 0 {
			t.Errorf("SplitMarkdown(%q) = %d chunks, want 0", input, len(got))
		}
	}
}

func TestSplitMarkdown_HeaderPaths(t *testing.T) {
	s := mustSplitter(t, Config{ChunkSize: 1000, ChunkOverlap: 200, PreserveHeaders: true})

	input := "# Title\n\nIntro text.\n\n## Section A\n\nBody A."
	got := s.SplitMarkdown(input)
	if len(got) != 2 {
		t.Fatalf("SplitMarkdown() = %d chunks, want 2: %+v", len(got), got)
	}

	if want := map[int]string{1: "Title"}; !reflect.DeepEqual(got[0].HeaderPath, want) {
		t.Errorf("chunk 0 HeaderPath = %v, want %v", got[0].HeaderPath, want)
	}
	if !strings.Contains(got[0].Content, "Intro text.") {
		t.Errorf("chunk 0 content = %q, want it to contain the intro", got[0].Content)
	}
	if !strings.HasPrefix(got[0].Content, "# Title\n\n") {
		t.Errorf("chunk 0 content = %q, want heading prefix", got[0].Content)
	}

	if want := map[int]string{1: "Title", 2: "Section A"}; !reflect.DeepEqual(got[1].HeaderPath, want) {
		t.Errorf("chunk 1 HeaderPath = %v, want %v", got[1].HeaderPath, want)
	}
	if !strings.Contains(got[1].Content, "Body A.") {
		t.Errorf("chunk 1 content = %q, want it to contain the body", got[1].Content)
	}
	if !strings.HasPrefix(got[1].Content, "# Title\n## Section A\n\n") {
		t.Errorf("chunk 1 content = %q, want stacked heading prefix", got[1].Content)
	}

	for i, c := range got {
		if c.Index != i {
			t.Errorf("chunk %d Index = %d, want %d", i, c.Index, i)
		}
	}
}

func TestSplitMarkdown_Offsets(t *testing.T) {
	s := mustSplitter(t, Config{ChunkSize: 1000, ChunkOverlap: 200, PreserveHeaders: true})

	input := "# Title\n\nIntro text.\n\n## Section A\n\nBody A."
	runes := []rune(input)
	got := s.SplitMarkdown(input)
	if len(got) != 2 {
		t.Fatalf("SplitMarkdown() = %d chunks, want 2", len(got))
	}

	// Offsets point at the section body in the document, not the rendered
	// prefix.
	if body := string(runes[got[0].StartChar:got[0].EndChar]); body != "Intro text." {
		t.Errorf("chunk 0 span covers %q, want %q", body, "Intro text.")
	}
	if body := string(runes[got[1].StartChar:got[1].EndChar]); body != "Body A." {
		t.Errorf("chunk 1 span covers %q, want %q", body, "Body A.")
	}
}

func TestSplitMarkdown_Preamble(t *testing.T) {
	s := mustSplitter(t, Config{ChunkSize: 1000, ChunkOverlap: 200, PreserveHeaders: true})

	got := s.SplitMarkdown("Some text before any heading.\n\n# First\n\nSection body.")
	if len(got) != 2 {
		t.Fatalf("SplitMarkdown() = %d chunks, want 2", len(got))
	}
	if got[0].HeaderPath != nil {
		t.Errorf("preamble HeaderPath = %v, want nil", got[0].HeaderPath)
	}
	if got[0].Content != "Some text before any heading." {
		t.Errorf("preamble content = %q", got[0].Content)
	}
}

func TestSplitMarkdown_SiblingHeadingsReplaceScope(t *testing.T) {
	s := mustSplitter(t, Config{ChunkSize: 1000, ChunkOverlap: 200, PreserveHeaders: true})

	input := "# Doc\n\n## One\n\nFirst.\n\n### Deep\n\nNested.\n\n## Two\n\nSecond."
	got := s.SplitMarkdown(input)
	if len(got) != 3 {
		t.Fatalf("SplitMarkdown() = %d chunks, want 3", len(got))
	}

	if want := map[int]string{1: "Doc", 2: "One", 3: "Deep"}; !reflect.DeepEqual(got[1].HeaderPath, want) {
		t.Errorf("nested HeaderPath = %v, want %v", got[1].HeaderPath, want)
	}
	// "## Two" must evict both "One" and "Deep".
	if want := map[int]string{1: "Doc", 2: "Two"}; !reflect.DeepEqual(got[2].HeaderPath, want) {
		t.Errorf("sibling HeaderPath = %v, want %v", got[2].HeaderPath, want)
	}
}

func TestSplitMarkdown_NoPreserveHeaders(t *testing.T) {
	s := mustSplitter(t, Config{ChunkSize: 1000, ChunkOverlap: 200})

	got := s.SplitMarkdown("# Title\n\nIntro text.")
	if len(got) != 1 {
		t.Fatalf("SplitMarkdown() = %d chunks, want 1", len(got))
	}
	if got[0].Content != "Intro text." {
		t.Errorf("content = %q, want bare section body", got[0].Content)
	}
	// Header lineage stays available even without the rendered prefix.
	if want := map[int]string{1: "Title"}; !reflect.DeepEqual(got[0].HeaderPath, want) {
		t.Errorf("HeaderPath = %v, want %v", got[0].HeaderPath, want)
	}
}

func TestSplitMarkdown_LargeSectionRecurses(t *testing.T) {
	s := mustSplitter(t, Config{ChunkSize: 120, ChunkOverlap: 20, PreserveHeaders: true})

	body := strings.Repeat("This sentence pads the section body out. ", 12)
	input := "# Guide\n\n" + body
	got := s.SplitMarkdown(input)
	if len(got) < 2 {
		t.Fatalf("SplitMarkdown() = %d chunks, want several", len(got))
	}

	runes := []rune(input)
	for i, c := range got {
		if !strings.HasPrefix(c.Content, "# Guide\n\n") {
			t.Errorf("chunk %d missing heading prefix: %q", i, c.Content)
		}
		if n := utf8.RuneCountInString(c.Content); n > 120 {
			t.Errorf("chunk %d length = %d runes, want <= 120", i, n)
		}
		if want := map[int]string{1: "Guide"}; !reflect.DeepEqual(c.HeaderPath, want) {
			t.Errorf("chunk %d HeaderPath = %v, want %v", i, c.HeaderPath, want)
		}
		if c.Index != i {
			t.Errorf("chunk %d Index = %d, want %d", i, c.Index, i)
		}
		if c.StartChar < 0 || c.EndChar > len(runes) || c.StartChar >= c.EndChar {
			t.Errorf("chunk %d has invalid span [%d,%d)", i, c.StartChar, c.EndChar)
		}
	}
}

func TestSplitMarkdown_PrefixConsumesBudget(t *testing.T) {
	// When the rendered heading prefix leaves a budget no larger than the
	// overlap, the whole section is emitted as one oversized chunk.
	s := mustSplitter(t, Config{ChunkSize: 30, ChunkOverlap: 20, PreserveHeaders: true})

	body := strings.Repeat("word ", 20)
	got := s.SplitMarkdown("# A very long heading here\n\n" + body)
	if len(got) != 1 {
		t.Fatalf("SplitMarkdown() = %d chunks, want 1 oversized chunk", len(got))
	}
	if !strings.HasPrefix(got[0].Content, "# A very long heading here\n\n") {
		t.Errorf("content = %q, want heading prefix", got[0].Content)
	}
	if !strings.HasSuffix(got[0].Content, "word") {
		t.Errorf("content = %q, want the full trimmed body", got[0].Content)
	}
}

func TestSplitMarkdown_Unicode(t *testing.T) {
	s := mustSplitter(t, Config{ChunkSize: 1000, ChunkOverlap: 200, PreserveHeaders: true})

	input := "# 概要\n\n日本語の本文です。"
	runes := []rune(input)
	got := s.SplitMarkdown(input)
	if len(got) != 1 {
		t.Fatalf("SplitMarkdown() = %d chunks, want 1", len(got))
	}
	if body := string(runes[got[0].StartChar:got[0].EndChar]); body != "日本語の本文です。" {
		t.Errorf("span covers %q, want the body in rune offsets", body)
	}
	if want := map[int]string{1: "概要"}; !reflect.DeepEqual(got[0].HeaderPath, want) {
		t.Errorf("HeaderPath = %v, want %v", got[0].HeaderPath, want)
	}
}
