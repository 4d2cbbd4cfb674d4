package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Job progress milestones. The info query accounts for the first 10
// points, the raw 0-100% of download activity is scaled onto 10-90, and
// the remaining 90-100 covers tagging and packaging.
const (
	ProgressInfoDone  = 10.0
	ProgressExtracted = 90.0
	ProgressDone      = 100.0
)

// progressPattern matches extraction progress lines such as
// "[download]  42.7% of 3.52MiB at 1.21MiB/s ETA 00:02".
var progressPattern = regexp.MustCompile(`(?i)\[?download]?\s+([0-9]+(?:\.[0-9]+)?)%`)

// ParseProgressLine extracts the download percentage from one stdout
// line. It returns ok=false for lines that carry no progress update or
// a percentage outside [0,100].
func ParseProgressLine(line string) (float64, bool) {
	m := progressPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}

	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

// ScaleProgress maps a raw download percentage onto the job progress
// range reserved for download activity
func ScaleProgress(pct float64) float64 {
	return ProgressInfoDone + pct*(ProgressExtracted-ProgressInfoDone)/100
}
