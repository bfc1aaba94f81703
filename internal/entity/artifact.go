package entity

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
)

// ArtifactRef identifies exactly one deployable image. The zero value means
// "no artifact".
type ArtifactRef struct {
	Repository string        `json:"repository"`
	Tag        string        `json:"tag,omitempty"`
	Digest     digest.Digest `json:"digest,omitempty"`
}

// ParseArtifactRef parses repository[:tag][@digest]. A reference with
// neither tag nor digest gets the "latest" tag.
func ParseArtifactRef(s string) (ArtifactRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ArtifactRef{}, fmt.Errorf("%w: blank artifact reference", ErrInvalid)
	}
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("%w: parse artifact %q: %v", ErrInvalid, s, err)
	}

	ref := ArtifactRef{Repository: reference.FamiliarName(named)}
	if tagged, ok := named.(reference.Tagged); ok {
		ref.Tag = tagged.Tag()
	}
	if digested, ok := named.(reference.Digested); ok {
		ref.Digest = digested.Digest()
	}
	if ref.Tag == "" && ref.Digest == "" {
		ref.Tag = "latest"
	}
	return ref, ref.Validate()
}

func (a ArtifactRef) IsZero() bool {
	return a.Repository == "" && a.Tag == "" && a.Digest == ""
}

func (a ArtifactRef) Validate() error {
	if a.Repository == "" {
		return fmt.Errorf("%w: artifact without repository", ErrInvalid)
	}
	if a.Tag == "" && a.Digest == "" {
		return fmt.Errorf("%w: artifact %s has neither tag nor digest", ErrInvalid, a.Repository)
	}
	if a.Digest != "" {
		if err := a.Digest.Validate(); err != nil {
			return fmt.Errorf("%w: artifact digest: %v", ErrInvalid, err)
		}
	}
	return nil
}

// String renders the reference the way the docker CLI accepts it.
func (a ArtifactRef) String() string {
	if a.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString(a.Repository)
	if a.Tag != "" {
		b.WriteString(":" + a.Tag)
	}
	if a.Digest != "" {
		b.WriteString("@" + a.Digest.String())
	}
	return b.String()
}
