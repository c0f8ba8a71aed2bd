package logic

import "strconv"

// DisplayWidth is the number of characters on one LCD row.
const DisplayWidth = 16

// DisplayLine formats one channel result for the LCD:
// "REF 27.3C 65.2%" on success, "REF Data Error" otherwise.
// The line is truncated to DisplayWidth.
func DisplayLine(r ChannelResult) string {
	var s string
	if r.OK() {
		s = r.Channel.Label() + " " + FormatTenths(r.Reading.TemperatureTenths) + "C " +
			FormatTenths(int(r.Reading.HumidityTenths)) + "%"
	} else {
		s = r.Channel.Label() + " Data Error"
	}
	if len(s) > DisplayWidth {
		s = s[:DisplayWidth]
	}
	return s
}

// DisplayLines returns both LCD rows for a batch.
func DisplayLines(b Batch) (string, string) {
	return DisplayLine(b.Refrigerator), DisplayLine(b.Freezer)
}

// FormatTenths renders a fixed-point tenths value with one decimal place,
// e.g. 273 -> "27.3", -5 -> "-0.5".
func FormatTenths(v int) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.Itoa(v/10) + "." + strconv.Itoa(v%10)
	if neg {
		return "-" + s
	}
	return s
}
