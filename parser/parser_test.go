package parser

import "testing"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
		ok    bool
	}{
		{name: "whole price with currency", input: "549 zł", want: 54900, ok: true},
		{name: "comma decimal", input: "549,99 zł", want: 54999, ok: true},
		{name: "dot decimal no currency", input: "549.99", want: 54999, ok: true},
		{name: "surrounding whitespace", input: "  549,99  zł  ", want: 54999, ok: true},
		{name: "thousands with space", input: "1 234,56 zł", want: 123456, ok: true},
		{name: "qualified price still parses", input: "od 549,99 zł", want: 54999, ok: true},
		{name: "empty", input: "", ok: false},
		{name: "not a price", input: "invalid", ok: false},
		{name: "currency only", input: "zł", ok: false},
		{name: "below sanity bound", input: "0,50 zł", ok: false},
		{name: "zero", input: "0 zł", ok: false},
		{name: "above sanity bound", input: "9999999 zł", ok: false},
		{name: "two commas", input: "1,2,3 zł", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParsePrice(%q) ok=%v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("ParsePrice(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsQualified(t *testing.T) {
	if !IsQualified("od 549 zł") {
		t.Fatalf("expected 'od' prefix to mark price as qualified")
	}
	if !IsQualified("from 549 zł") {
		t.Fatalf("expected 'from' prefix to mark price as qualified")
	}
	if IsQualified("549 zł") {
		t.Fatalf("bare price should not be qualified")
	}
	if IsQualified("model 549 zł") {
		t.Fatalf("qualifier must be a leading token")
	}
}

func TestExtractProductCode(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "html suffix",
			url:  "https://morele.net/ASUS-VivoBook-15-OLED-X1505ZA-10751839.html",
			want: "10751839",
		},
		{
			name: "trailing segment with slash",
			url:  "https://www.morele.net/pamiec-corsair-vengeance-lpx-1792417/",
			want: "1792417",
		},
		{
			name: "multiple numbers keeps trailing",
			url:  "https://morele.net/product-123-456-789.html",
			want: "789",
		},
		{
			name: "category listing has no code",
			url:  "https://morele.net/laptops/",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractProductCode(tt.url); got != tt.want {
				t.Fatalf("ExtractProductCode(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestBuildSearchURL(t *testing.T) {
	if got := BuildSearchURL("10751839"); got != "https://www.morele.net/search/?q=10751839" {
		t.Fatalf("BuildSearchURL = %q", got)
	}
	if got := BuildSearchURL("00123456"); got != "https://www.morele.net/search/?q=00123456" {
		t.Fatalf("leading zeros must survive: %q", got)
	}
}

func TestIsWellFormedURL(t *testing.T) {
	valid := []string{
		"https://morele.net/product-123.html",
		"http://www.morele.net/laptopy/",
	}
	for _, u := range valid {
		if !IsWellFormedURL(u) {
			t.Fatalf("expected %q to be well-formed", u)
		}
	}

	invalid := []string{"", "not a url", "morele.net/product", "ftp://example.com/x"}
	for _, u := range invalid {
		if IsWellFormedURL(u) {
			t.Fatalf("expected %q to be rejected", u)
		}
	}
}
