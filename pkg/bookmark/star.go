package bookmark

import "fmt"

// Color is one of the five star colors.
type Color uint8

// Star colors.
const (
	Yellow Color = iota
	Green
	Red
	Blue
	Purple
)

// Colors lists every color in display order.
var Colors = [...]Color{Yellow, Green, Red, Blue, Purple}

// String returns the feed tag of the color.
func (c Color) String() string {
	switch c {
	case Yellow:
		return "yellow"
	case Green:
		return "green"
	case Red:
		return "red"
	case Blue:
		return "blue"
	case Purple:
		return "purple"
	default:
		return fmt.Sprintf("Color(%d)", uint8(c))
	}
}

// ParseColor maps a feed color tag to a Color.
func ParseColor(tag string) (Color, bool) {
	switch tag {
	case "yellow":
		return Yellow, true
	case "green":
		return Green, true
	case "red":
		return Red, true
	case "blue":
		return Blue, true
	case "purple":
		return Purple, true
	default:
		return 0, false
	}
}

// StarTally counts stars per color.
type StarTally struct {
	Yellow int `json:"yellow"`
	Green  int `json:"green"`
	Red    int `json:"red"`
	Blue   int `json:"blue"`
	Purple int `json:"purple"`
}

// Add adds n stars of color c. Non-positive n is ignored.
func (t *StarTally) Add(c Color, n int) {
	if n <= 0 {
		return
	}
	switch c {
	case Yellow:
		t.Yellow += n
	case Green:
		t.Green += n
	case Red:
		t.Red += n
	case Blue:
		t.Blue += n
	case Purple:
		t.Purple += n
	default:
		panic(fmt.Sprintf("bookmark: unknown star color %d", uint8(c)))
	}
}

// Get returns the count for color c.
func (t StarTally) Get(c Color) int {
	switch c {
	case Yellow:
		return t.Yellow
	case Green:
		return t.Green
	case Red:
		return t.Red
	case Blue:
		return t.Blue
	case Purple:
		return t.Purple
	default:
		panic(fmt.Sprintf("bookmark: unknown star color %d", uint8(c)))
	}
}

// Total is the sum over all colors.
func (t StarTally) Total() int {
	return t.Yellow + t.Green + t.Red + t.Blue + t.Purple
}

// Dominates reports whether every color count is >= the one in other.
func (t StarTally) Dominates(other StarTally) bool {
	for _, c := range Colors {
		if t.Get(c) < other.Get(c) {
			return false
		}
	}
	return true
}
