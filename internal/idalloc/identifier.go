package idalloc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/rollcall/internal/common"
)

// Policy describes how numbers of one namespace are rendered.
type Policy struct {
	Prefix string
	// PadWidth is the minimum digit count; 0 disables zero padding.
	PadWidth int
}

// Render formats n according to the policy.
func (p Policy) Render(n int64) string {
	if p.PadWidth > 0 {
		return fmt.Sprintf("%s%0*d", p.Prefix, p.PadWidth, n)
	}
	return p.Prefix + strconv.FormatInt(n, 10)
}

// Parse extracts the number from a rendered identifier.
func (p Policy) Parse(value string) (int64, error) {
	digits, ok := strings.CutPrefix(value, p.Prefix)
	if !ok || digits == "" {
		return 0, fmt.Errorf("%w: %q does not start with prefix %q", common.ErrInvalidArgument, value, p.Prefix)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q has no positive numeric suffix", common.ErrInvalidArgument, value)
	}
	return n, nil
}

func (p Policy) validate() error {
	if p.PadWidth < 0 || p.PadWidth > 18 {
		return fmt.Errorf("%w: pad width %d out of range", common.ErrInvalidArgument, p.PadWidth)
	}
	if n := len(p.Prefix); n > 0 && p.Prefix[n-1] >= '0' && p.Prefix[n-1] <= '9' {
		// "s1"+"2" and "s"+"12" would render the same string.
		return fmt.Errorf("%w: prefix %q must not end with a digit", common.ErrInvalidArgument, p.Prefix)
	}
	return nil
}

// Counter is the authoritative state of one namespace.
type Counter struct {
	Namespace  string
	Prefix     string
	PadWidth   int
	LastIssued int64
}

// Policy returns the rendering policy the counter was created with.
func (c Counter) Policy() Policy {
	return Policy{Prefix: c.Prefix, PadWidth: c.PadWidth}
}

// Matches reports whether p is the policy recorded on the counter.
func (c Counter) Matches(p Policy) bool {
	return c.Prefix == p.Prefix && c.PadWidth == p.PadWidth
}

// Identifier is an issued, immutable identifier.
type Identifier struct {
	Namespace string
	Number    int64
	Value     string
}

func (id Identifier) String() string { return id.Value }

func issued(c Counter) Identifier {
	return Identifier{
		Namespace: c.Namespace,
		Number:    c.LastIssued,
		Value:     c.Policy().Render(c.LastIssued),
	}
}
