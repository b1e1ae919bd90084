package banner

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
)

func TestRenderProducesPNG(t *testing.T) {
	g := NewGenerator()

	data, err := g.Render("My Project")
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		t.Errorf("banner is %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), width, height)
	}
}

func TestTextOriginX(t *testing.T) {
	tests := []struct {
		name      string
		textWidth int
		want      int
	}{
		{name: "narrow title is centered", textWidth: 100, want: 590},
		{name: "full width starts at the edge", textWidth: width, want: 0},
		{name: "oversized title clamps to the edge", textWidth: 1750, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textOriginX(tt.textWidth); got != tt.want {
				t.Errorf("textOriginX(%d) = %d, want %d", tt.textWidth, got, tt.want)
			}
		})
	}
}

func TestRenderLongTitle(t *testing.T) {
	g := NewGenerator()

	data, err := g.Render(strings.Repeat("a", 250))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("decode png: %v", err)
	}
}

func TestRenderEmptyTitle(t *testing.T) {
	g := NewGenerator()

	if _, err := g.Render(""); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestRenderDeterministic(t *testing.T) {
	g := NewGenerator()

	a, err := g.Render("Title")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b, err := g.Render("Title")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("expected identical output for the same title")
	}
}
