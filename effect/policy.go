package effect

import (
	"fmt"
	"strings"
)

// Policy decides what happens to a request that arrives while invocations
// are in flight on the same lane.
type Policy int

const (
	// Exhaust drops the new request while an invocation is pending.
	Exhaust Policy = iota
	// Switch cancels the pending invocations and starts the new one.
	// Cancelled invocations never emit.
	Switch
	// Merge runs every request concurrently.
	Merge
	// Concat queues requests and runs them one at a time in arrival order.
	Concat
)

var policyNames = map[Policy]string{
	Exhaust: "exhaust",
	Switch:  "switch",
	Merge:   "merge",
	Concat:  "concat",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses a policy name, case-insensitively.
func ParsePolicy(name string) (Policy, error) {
	for p, n := range policyNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return Exhaust, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

func (p Policy) MarshalText() ([]byte, error) {
	if _, ok := policyNames[p]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPolicy, int(p))
	}
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
