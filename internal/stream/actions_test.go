package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/dtnitsch/llm-bionic/pkg/dom"
	"github.com/dtnitsch/llm-bionic/pkg/runloop"
)

func TestChunks(t *testing.T) {
	tests := []struct {
		name      string
		paragraph string
		n         int
		want      []string
	}{
		{"even split", "one two three four", 2, []string{"one two ", "three four"}},
		{"remainder", "one two three", 2, []string{"one two ", "three"}},
		{"single word chunks", "a b", 1, []string{"a ", "b"}},
		{"non-positive size", "a b", 0, []string{"a ", "b"}},
		{"empty", "", 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunks(tt.paragraph, tt.n)
			if strings.Join(got, "") != tt.paragraph {
				t.Errorf("Chunks() pieces %q do not rebuild %q", got, tt.paragraph)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Chunks() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Chunks()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParagraphs(t *testing.T) {
	got := Paragraphs("First line\nstill first.\r\n\r\n\n\nSecond   paragraph.\n")
	want := []string{"First line still first.", "Second paragraph."}
	if len(got) != len(want) {
		t.Fatalf("Paragraphs() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Paragraphs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChatPage(t *testing.T) {
	page := ChatPage("what is <b>?")
	if !strings.Contains(page, "what is &lt;b&gt;?") {
		t.Errorf("ChatPage() did not escape the prompt: %s", page)
	}
	if !strings.Contains(page, `data-message-author-role="assistant"`) {
		t.Error("ChatPage() has no assistant region")
	}
}

func TestAppendChunk(t *testing.T) {
	doc, err := dom.ParseString("<body><p></p></body>", runloop.NewManual(time.Unix(0, 0)))
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	p := doc.Find("p").Get(0)

	tail := appendChunk(doc, p, nil, "one two ")
	if got := appendChunk(doc, p, tail, "three "); got != tail {
		t.Fatal("appendChunk() did not grow the attached tail")
	}

	// the engine swaps the settled tail for a container
	span := dom.NewElement("span")
	span.AppendChild(dom.NewText(tail.Data))
	if err := doc.ReplaceChild(p, span, tail); err != nil {
		t.Fatalf("ReplaceChild() error = %v", err)
	}

	next := appendChunk(doc, p, tail, "four five")
	if next == tail || !doc.Attached(next) {
		t.Fatal("appendChunk() wrote into a detached node")
	}
	if got, want := dom.TextContent(p), "one two three four five"; got != want {
		t.Errorf("paragraph text = %q, want %q", got, want)
	}
}
