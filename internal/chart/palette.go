package chart

// Entry pairs a line color with the marker shown next to the ticker in text.
type Entry struct {
	Hex    string
	Marker string
}

// Palette is indexed by a ticker's position in the tracked list.
var Palette = []Entry{
	{Hex: "89b4fa", Marker: "🔵"},
	{Hex: "a6e3a1", Marker: "🟢"},
	{Hex: "f38ba8", Marker: "🔴"},
	{Hex: "fab387", Marker: "🟠"},
	{Hex: "cba6f7", Marker: "🟣"},
	{Hex: "f9e2af", Marker: "🟡"},
	{Hex: "74c7ec", Marker: "🟤"},
}

func wrap(i int) int {
	n := len(Palette)
	return ((i % n) + n) % n
}

// ColorForIndex returns the hex color (no leading #) for position i, cycling.
func ColorForIndex(i int) string { return Palette[wrap(i)].Hex }

// MarkerForIndex returns the emoji marker for position i, cycling.
func MarkerForIndex(i int) string { return Palette[wrap(i)].Marker }
