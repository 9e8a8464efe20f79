package session

// colorPalette is the fixed set of colors handed to joining users in
// round-robin order. The 13th user gets the first color again.
var colorPalette = [...]string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#96CEB4",
	"#FFEAA7",
	"#DDA0DD",
	"#F39C12",
	"#98D8C8",
	"#BB8FCE",
	"#85C1E9",
	"#F1948A",
	"#52BE80",
}

func colorForIndex(i int) string {
	return colorPalette[i%len(colorPalette)]
}
