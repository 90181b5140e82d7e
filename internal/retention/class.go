package retention

import (
	"fmt"
	"strings"
)

// Class is the retention class a snapshot is tagged with.
type Class string

const (
	Hourly  Class = "hourly"
	Daily   Class = "daily"
	Monthly Class = "monthly"
	Yearly  Class = "yearly"
)

// Classes lists every retention class in processing order.
var Classes = []Class{Hourly, Daily, Monthly, Yearly}

func init() {
	// Names are classified by their "-<class>" suffix, so no suffix may end
	// with another one.
	for _, a := range Classes {
		for _, b := range Classes {
			if a != b && strings.HasSuffix("-"+string(a), "-"+string(b)) {
				panic(fmt.Sprintf("retention: class %q collides with %q", a, b))
			}
		}
	}
}

// ParseClass converts a label such as "daily" into a Class.
func ParseClass(s string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidClass, s)
	}
	return c, nil
}

// Valid reports whether c is one of the known retention classes.
func (c Class) Valid() bool {
	for _, known := range Classes {
		if c == known {
			return true
		}
	}
	return false
}

func (c Class) String() string {
	return string(c)
}
