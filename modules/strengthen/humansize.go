package strengthen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	sizeList = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
)

func logN(n, b float64) float64 {
	return math.Log(n) / math.Log(b)
}

func formatBytes(s uint64, base float64) string {
	if s < 10 {
		return fmt.Sprintf("%d B", s)
	}
	e := math.Floor(logN(float64(s), base))
	suffix := sizeList[int(e)]
	val := math.Floor(float64(s)/math.Pow(base, e)*10+0.5) / 10
	f := "%.0f %s"
	if val < 10 {
		f = "%.1f %s"
	}

	return fmt.Sprintf(f, val, suffix)
}

func FormatSize(s int64) string {
	return formatBytes(uint64(s), 1024)
}

func FormatSizeU(s uint64) string {
	return formatBytes(s, 1024)
}

var sizeUnits = map[string]int64{
	"":    1,
	"b":   1,
	"k":   1 << 10,
	"kb":  1 << 10,
	"kib": 1 << 10,
	"m":   1 << 20,
	"mb":  1 << 20,
	"mib": 1 << 20,
	"g":   1 << 30,
	"gb":  1 << 30,
	"gib": 1 << 30,
	"t":   1 << 40,
	"tb":  1 << 40,
	"tib": 1 << 40,
}

// ParseSize parses human sizes like "512", "64K", "2 MiB".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if c >= '0' && c <= '9' {
			break
		}
		i--
	}
	unit, ok := sizeUnits[strings.ToLower(strings.TrimSpace(s[i:]))]
	if !ok {
		return 0, fmt.Errorf("unrecognized size unit: '%s'", s[i:])
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s[:i]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized size: '%s'", s)
	}
	return n * unit, nil
}
