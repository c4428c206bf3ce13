package timestamp

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/seafloor-imaging/go-voyage-media/naming"
)

// PatternMatcher inspects a raw filename and either returns the UTC capture
// timestamp it encodes or declines. Matchers are tried in a fixed priority
// order; the first match wins.
type PatternMatcher func(name string) (time.Time, bool)

var (
	re_iso_token    = regexp.MustCompile(`(\d{8}T\d{6})Z`)
	re_compact      = regexp.MustCompile(`(\d{8})[_-](\d{6})`)
	re_stills       = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})[T ](\d{2})[.\-:](\d{2})[.\-:](\d{2})`)
)

// CanonicalMatcher recognizes filenames already in the canonical grammar
// for the given instrument codes and deployment, so that re-running a
// processed deployment resolves identical timestamps without touching file
// contents.
func CanonicalMatcher(deployment_id string, instruments ...string) PatternMatcher {

	return func(name string) (time.Time, bool) {

		for _, instrument := range instruments {

			n, ok := naming.Parse(name, instrument, deployment_id)

			if ok && !n.Timestamp.IsZero() {
				return n.Timestamp, true
			}
		}

		return time.Time{}, false
	}
}

// ISOTokenMatcher matches a "YYYYMMDDTHHMMSSZ" token anywhere in the
// filename.
func ISOTokenMatcher() PatternMatcher {

	return func(name string) (time.Time, bool) {

		m := re_iso_token.FindStringSubmatch(filepath.Base(name))

		if m == nil {
			return time.Time{}, false
		}

		t, err := time.Parse("20060102T150405", m[1])

		if err != nil {
			return time.Time{}, false
		}

		return t.UTC(), true
	}
}

// CompactTokenMatcher matches a "YYYYMMDD_HHMMSS" (or hyphenated) token.
func CompactTokenMatcher() PatternMatcher {

	return func(name string) (time.Time, bool) {

		m := re_compact.FindStringSubmatch(filepath.Base(name))

		if m == nil {
			return time.Time{}, false
		}

		t, err := time.Parse("20060102150405", m[1]+m[2])

		if err != nil {
			return time.Time{}, false
		}

		return t.UTC(), true
	}
}

// StillsMatcher matches the "YYYY-MM-DD HH.MM.SS" convention used by some
// stills cameras, including the "YYYY-MM-DDTHH-MM-SS" variant.
func StillsMatcher() PatternMatcher {

	return func(name string) (time.Time, bool) {

		base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

		m := re_stills.FindStringSubmatch(base)

		if m == nil {
			return time.Time{}, false
		}

		str := fmt.Sprintf("%s %s:%s:%s", m[1], m[2], m[3], m[4])
		t, err := time.Parse("2006-01-02 15:04:05", str)

		if err != nil {
			return time.Time{}, false
		}

		return t.UTC(), true
	}
}
