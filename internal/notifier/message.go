package notifier

// DefaultColor is the embed accent color of price reports.
const DefaultColor = 0x89b4fa

// ChartFileName is the attachment name the embed image refers to.
const ChartFileName = "chart.png"

// Field is one labelled value of a report.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a transport-neutral notification. A message with only Content
// is sent as plain text.
type Message struct {
	Content   string
	Title     string
	Color     int
	Fields    []Field
	Image     []byte
	ImageName string
}

// HasEmbed reports whether the message carries a report body.
func (m Message) HasEmbed() bool {
	return m.Title != "" || len(m.Fields) > 0
}
