package xapi

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Version is an xAPI protocol version tag. It is sent with every request
// in the X-Experience-API-Version header and selects the serialization.
type Version string

const (
	Version103 Version = "1.0.3"
	Version102 Version = "1.0.2"
	Version101 Version = "1.0.1"
	Version100 Version = "1.0.0"

	LatestVersion = Version103
)

var (
	ErrUnsupportedVersion = errors.New("xapi: unsupported version")

	supportedVersions = []Version{
		Version103,
		Version102,
		Version101,
		Version100,
	}
)

// SupportedVersions returns the supported versions, newest first.
func SupportedVersions() []Version {
	return append([]Version(nil), supportedVersions...)
}

// ParseVersion validates s against the supported versions.
func ParseVersion(s string) (Version, error) {
	for _, v := range supportedVersions {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, s)
}

// NegotiateVersion returns the newest supported version among those
// offered, typically the version list of a store's about resource.
// Offered strings that are not valid semantic versions are ignored.
func NegotiateVersion(offered []string) (Version, error) {
	var candidates []*semver.Version
	for _, o := range offered {
		if _, err := ParseVersion(o); err != nil {
			continue
		}
		sv, err := semver.NewVersion(o)
		if err != nil {
			continue
		}
		candidates = append(candidates, sv)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: none of %q", ErrUnsupportedVersion, offered)
	}
	sort.Sort(sort.Reverse(semver.Collection(candidates)))
	return Version(candidates[0].Original()), nil
}

func (v Version) String() string {
	return string(v)
}
