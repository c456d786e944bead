package media

import (
	"path/filepath"
	"testing"

	"github.com/miuvuu/miuvuu-backend/pkg/config"
)

func testMapper() *Mapper {
	return NewMapper(config.StorageConfig{Root: "/srv/media", UploadsSegment: "uploads", ProductsSegment: productsSeg})
}

func TestNormalize(t *testing.T) {
	m := testMapper()
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "  /uploads/shoe.png ", want: "/uploads/shoe.png"},
		{in: "http://localhost:5000/uploads/CarpetasDeProductos/a/b.webp", want: "/uploads/CarpetasDeProductos/a/b.webp"},
		{in: "https://cdn.example.com/uploads/a%20b.png", want: "/uploads/a%20b.png"},
		{in: "uploads/shoe.png", want: "/uploads/shoe.png"},
		{in: "/static/other.png", want: "/static/other.png"},
	}
	for _, tt := range tests {
		got := m.Normalize(tt.in)
		if got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := m.Normalize(got); again != got {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", tt.in, got, again)
		}
	}
}

func TestToPathAndToURLRoundTrip(t *testing.T) {
	m := testMapper()
	rel := filepath.Join(productsSeg, "Red_Shoe_20240101120000_42", "front one.webp")
	url := m.ToURL(rel)
	if url != "/uploads/CarpetasDeProductos/Red_Shoe_20240101120000_42/front%20one.webp" {
		t.Fatalf("unexpected url %q", url)
	}
	got, ok := m.ToPath(url)
	if !ok || got != rel {
		t.Fatalf("ToPath(%q) = %q, %v", url, got, ok)
	}
	if _, ok := m.ToPath("/static/x.png"); ok {
		t.Fatal("foreign prefix must not map")
	}
	if _, ok := m.ToPath("/uploads/"); ok {
		t.Fatal("bare prefix must not map")
	}
	if _, ok := m.ToPath("/uploads/bad%zz"); ok {
		t.Fatal("invalid escape must not map")
	}
	if _, ok := m.ToPath("/uploads/a%00b"); ok {
		t.Fatal("NUL must not map")
	}
}

func TestFolderOf(t *testing.T) {
	m := testMapper()
	tests := map[string]string{
		"/uploads/CarpetasDeProductos/Red_Shoe_1/a.webp":            "Red_Shoe_1",
		"http://host/uploads/CarpetasDeProductos/Red_Shoe_1/a.webp": "Red_Shoe_1",
		"/uploads/shoe_red.png":                                     "",
		"/uploads/CarpetasDeProductos/":                             "",
		"/uploads/CarpetasDeProductos/..%2f/a.webp":                 "",
		"/uploads/CarpetasDeProductos/../a.webp":                    "",
		"garbage":                                                   "",
	}
	for in, want := range tests {
		if got := m.FolderOf(in); got != want {
			t.Fatalf("FolderOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDescribe(t *testing.T) {
	m := testMapper()
	d := m.Describe("http://host/uploads/CarpetasDeProductos/ns_1/Front.WEBP")
	if d.URL != "/uploads/CarpetasDeProductos/ns_1/Front.WEBP" || d.Namespace != "ns_1" || d.Filename != "Front.WEBP" || d.Extension != ".webp" {
		t.Fatalf("unexpected descriptor %+v", d)
	}
	legacy := m.Describe("/uploads/shoe_red.png")
	if !legacy.IsLegacy() || legacy.Filename != "shoe_red.png" {
		t.Fatalf("unexpected legacy descriptor %+v", legacy)
	}
}
