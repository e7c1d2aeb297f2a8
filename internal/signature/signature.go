// Package signature computes the dynamic X-App-N header required by the
// exir endpoint family. The arithmetic is preserved bit-for-bit from
// original_source/exir_broker.rs::calculate_x_app_n — the endpoint validates
// this token server-side and rejects any deviation, including in the
// floating-point rounding behavior.
package signature

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// XAppN computes the "<int>.<int>" X-App-N header value for url, using the
// per-endpoint nt secret and the current UTC wall time.
//
// now is taken by the caller (time.Now().UTC()) rather than read internally
// so the function is a pure mapping of (nt, url, now) to its output, per
// spec.md §8's testable property.
func XAppN(nt, url string, now time.Time) string {
	// The 2-second back-shift is kept exactly as the original computes it;
	// the original carries no rationale for the constant.
	shifted := now.Add(-2 * time.Second)
	nowS := int64(3600*shifted.Hour() + 60*shifted.Minute() + shifted.Second())

	path := urlPath(url)
	var charSum int64
	for _, c := range path {
		charSum += int64(c)
	}

	l := nt
	if len(nt) > 2 {
		l = nt[2:]
	}
	offsetStr := "0"
	if len(nt) >= 2 {
		offsetStr = nt[0:2]
	}
	offset := int64(0)
	if n, err := strconv.ParseInt(offsetStr, 10, 64); err == nil {
		offset = n
	}

	lLen := int64(len(l))
	var pos int
	if lLen > 5 {
		pos = int(absInt64(nowS%(lLen-5) - offset))
	}

	endPos := pos + 5
	if endPos > len(l) {
		endPos = len(l)
	}
	fragment := "0"
	if pos < len(l) {
		fragment = l[pos:endPos]
	}

	extracted, err := strconv.ParseFloat(fragment, 64)
	if err != nil {
		extracted = 0.0
	}

	secondPart := nowS * charSum
	firstPart := int64(math.Floor(math.Floor(extracted) * float64(secondPart)))

	return fmt.Sprintf("%d.%d", firstPart, secondPart)
}

// urlPath returns the URL path starting at the first "/" after the
// authority (scheme://host[:port]). If url has no "://", url itself is
// treated as the path.
func urlPath(url string) string {
	pos := strings.Index(url, "://")
	if pos < 0 {
		return url
	}
	rest := url[pos+3:]
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		return rest[slash:]
	}
	return "/"
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
