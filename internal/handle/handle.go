// Package handle encodes account provenance into an Identity's handle and
// derives the identity's classification back from it.
//
// Three shapes exist, checked in this order:
//
//	tmp-<timestamp>_<random>           placeholder
//	<tag>-<institution-slug>-<id>      unlinked institution account
//	anything else                      verified (usually an email, maybe _NNN suffixed)
package handle

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"uniauth/internal/domain"
)

const (
	PlaceholderPrefix = "tmp-"

	placeholderTime = "20060102150405.000000"
	suffixLen       = 5
	alphanumerics   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxSuffix bounds ChooseUnique; the suffix is zero-padded to three digits
	// but may grow past 999.
	maxSuffix = 100000
)

// MakePlaceholder returns a fresh placeholder handle. Collisions are possible
// in theory; callers persisting the handle retry on a unique violation.
func MakePlaceholder() string {
	return makePlaceholder(time.Now().UTC(), rand.Reader)
}

func makePlaceholder(now time.Time, r io.Reader) string {
	ts := strings.Replace(now.Format(placeholderTime), ".", "", 1)
	return PlaceholderPrefix + ts + "_" + randomString(r, suffixLen)
}

func randomString(r io.Reader, n int) string {
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			panic(fmt.Sprintf("handle: read random: %v", err))
		}
		for _, b := range buf {
			// reject the tail of the byte range to keep the draw uniform
			if int(b) >= 256-256%len(alphanumerics) {
				continue
			}
			out = append(out, alphanumerics[int(b)%len(alphanumerics)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}

// Unlinked builds the deterministic handle of an institution account that has
// not been tied to a verified profile yet.
func Unlinked(tag, slug, externalID string) string {
	return tag + "-" + slug + "-" + externalID
}

// SplitUnlinked decodes an unlinked handle. The slug may contain dashes, so
// the first segment is the tag, the last is the external id and everything in
// between is the slug. The check is purely structural.
func SplitUnlinked(h string) (tag, slug, externalID string, err error) {
	parts := strings.Split(h, "-")
	if len(parts) < 3 {
		return "", "", "", &domain.FormatError{Value: h, Reason: "not an unlinked institution handle"}
	}
	return parts[0], strings.Join(parts[1:len(parts)-1], "-"), parts[len(parts)-1], nil
}

// Lookup reports whether a handle is already owned by an Identity.
type Lookup interface {
	HandleExists(ctx context.Context, h string) (bool, error)
}

type LookupFunc func(ctx context.Context, h string) (bool, error)

func (f LookupFunc) HandleExists(ctx context.Context, h string) (bool, error) { return f(ctx, h) }

// Suffixed returns the n-th candidate derived from base: base itself for
// n <= 1, then base_002, base_003 and so on.
func Suffixed(base string, n int) string {
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%s_%03d", base, n)
}

// ChooseUnique returns the first candidate derived from base that no Identity
// owns. The answer is only a hint under concurrency: the handle uniqueness
// constraint decides, and callers retry when they lose the race.
func ChooseUnique(ctx context.Context, lookup Lookup, base string) (string, error) {
	for n := 1; n <= maxSuffix; n++ {
		candidate := Suffixed(base, n)
		exists, err := lookup.HandleExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", &domain.StoreError{Op: "choose handle", Err: fmt.Errorf("no free handle for %q", base)}
}
