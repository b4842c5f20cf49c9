package digest

import (
	"context"
	"hash/fnv"
)

// Greeter produces the opening line of a digest.
type Greeter interface {
	Greeting(ctx context.Context, action, dateKey string) (string, error)
}

// StaticGreeter rotates through a fixed list, picking the same line for the
// same action on the same day.
type StaticGreeter struct {
	Lines []string
}

var defaultGreetings = []string{
	"Good day! A few minutes of practice goes a long way.",
	"Welcome back. Here is today's handful of words.",
	"Small steps every day. Let's review.",
	"Stay curious today.",
}

// Greeting returns the line for action on dateKey.
func (g StaticGreeter) Greeting(_ context.Context, action, dateKey string) (string, error) {
	lines := g.Lines
	if len(lines) == 0 {
		lines = defaultGreetings
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(action + "|" + dateKey))
	return lines[int(h.Sum32()%uint32(len(lines)))], nil
}
