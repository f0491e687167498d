package format

import "strconv"

var byteUnits = []string{"KB", "MB", "GB", "TB", "PB"}

// HumanizeBytes converts a byte count into a human-readable string (e.g., "1.5 MB").
// Negative counts mean "unknown" and render as "? B".
func HumanizeBytes(b int64) string {
	const unit = 1024
	if b < 0 {
		return "? B"
	}
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit && exp < len(byteUnits)-1; n /= unit {
		div *= unit
		exp++
	}
	var buf [24]byte
	s := strconv.AppendFloat(buf[:0], float64(b)/float64(div), 'f', 1, 64)
	return string(s) + " " + byteUnits[exp]
}

// Percent renders a 0..100 progress value as "42%".
func Percent(p int) string {
	return strconv.Itoa(p) + "%"
}
