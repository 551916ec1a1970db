package imagecodec

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindImages(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{
		"images/IMG_3229.JPG",
		"images/a.jpeg",
		"images/done.webp",
		"icons/favicon.png",
		"icons/logo.png",
		"notes.txt",
	} {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := FindImages(root, []string{"favicon.png"})
	if err != nil {
		t.Fatalf("FindImages: %v", err)
	}
	want := []string{
		filepath.Join(root, "icons/logo.png"),
		filepath.Join(root, "images/IMG_3229.JPG"),
		filepath.Join(root, "images/a.jpeg"),
	}
	if len(got) != len(want) {
		t.Fatalf("FindImages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FindImages[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWebPPath(t *testing.T) {
	if got := WebPPath("assets/images/IMG_1.JPG"); got != "assets/images/IMG_1.webp" {
		t.Errorf("WebPPath = %s", got)
	}
}

func TestSharedWebPTargets(t *testing.T) {
	got := SharedWebPTargets([]string{
		"assets/images/logo.jpg",
		"assets/images/logo.png",
		"assets/images/hero.png",
		"assets/icons/logo.png",
	})
	if len(got) != 1 {
		t.Fatalf("SharedWebPTargets = %v, want one group", got)
	}
	srcs := got["assets/images/logo.webp"]
	if len(srcs) != 2 || srcs[0] != "assets/images/logo.jpg" || srcs[1] != "assets/images/logo.png" {
		t.Errorf("logo.webp sources = %v", srcs)
	}

	if got := SharedWebPTargets([]string{"a.png", "b.png"}); len(got) != 0 {
		t.Errorf("distinct targets reported as shared: %v", got)
	}
}
