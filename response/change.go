package response

import (
	"github.com/casualjim/instruct/pkg/jsonx"
	"github.com/tidwall/gjson"
)

// ChangeDetector suppresses consecutive candidates whose canonical JSON is identical.
// It is reset at the start of every attempt.
type ChangeDetector struct {
	last uint64
	seen bool
}

// Changed reports whether v differs from the previously observed value and records it.
func (c *ChangeDetector) Changed(v any) (bool, uint64, error) {
	if r, ok := v.(gjson.Result); ok {
		v = r.Value()
	}
	h, err := jsonx.Hash(v)
	if err != nil {
		return false, 0, err
	}
	if c.seen && h == c.last {
		return false, h, nil
	}
	c.last, c.seen = h, true
	return true, h, nil
}

// Reset forgets the last value so the next candidate is always reported as changed.
func (c *ChangeDetector) Reset() {
	c.last, c.seen = 0, false
}
