package entity

import (
	"errors"
	"testing"
)

func TestParseArtifactRef(t *testing.T) {
	const sum = "sha256:4d5a0e1b3c5f7e9a1b3c5d7e9f1a3b5c7d9e1f3a5b7c9d1e3f5a7b9c1d3e5f7a"
	tests := []struct {
		input string
		want  ArtifactRef
		str   string
	}{
		{"app", ArtifactRef{Repository: "app", Tag: "latest"}, "app:latest"},
		{"app:v1.2.0", ArtifactRef{Repository: "app", Tag: "v1.2.0"}, "app:v1.2.0"},
		{"ghcr.io/acme/web:3f2c1ab", ArtifactRef{Repository: "ghcr.io/acme/web", Tag: "3f2c1ab"}, "ghcr.io/acme/web:3f2c1ab"},
		{"localhost:5000/demo:1", ArtifactRef{Repository: "localhost:5000/demo", Tag: "1"}, "localhost:5000/demo:1"},
		{"app@" + sum, ArtifactRef{Repository: "app", Digest: sum}, "app@" + sum},
		{"app:v2@" + sum, ArtifactRef{Repository: "app", Tag: "v2", Digest: sum}, "app:v2@" + sum},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseArtifactRef(tt.input)
			if err != nil {
				t.Fatalf("ParseArtifactRef(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseArtifactRef(%q) = %+v; want %+v", tt.input, got, tt.want)
			}
			if got.String() != tt.str {
				t.Errorf("String() = %q; want %q", got.String(), tt.str)
			}
		})
	}
}

func TestParseArtifactRefInvalid(t *testing.T) {
	for _, input := range []string{"", "   ", "UPPER/case", "app:", "app@sha256:short"} {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseArtifactRef(input); !errors.Is(err, ErrInvalid) {
				t.Fatalf("ParseArtifactRef(%q) error = %v; want ErrInvalid", input, err)
			}
		})
	}
}
