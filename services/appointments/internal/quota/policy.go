// Package quota maps a requester classification to the number of
// simultaneously active (pending + confirmed) appointments it may hold.
package quota

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unlimited is the sentinel limit for classifications without a cap.
const Unlimited = -1

// Policy is immutable after construction and safe for concurrent use.
type Policy struct {
	limits map[string]int
}

// DefaultLimits applies when no policy file is configured.
var DefaultLimits = map[string]int{
	"free":      3,
	"standard":  5,
	"premium":   10,
	"vip":       Unlimited,
	"exhibitor": 10,
	"partner":   20,
	"admin":     Unlimited,
}

func NewPolicy(limits map[string]int) *Policy {
	p := &Policy{limits: make(map[string]int, len(limits))}
	for k, v := range limits {
		if v < 0 {
			v = Unlimited
		}
		p.limits[normalize(k)] = v
	}
	return p
}

func Default() *Policy {
	return NewPolicy(DefaultLimits)
}

type fileFormat struct {
	Limits map[string]int `yaml:"limits"`
}

// LoadFile reads a YAML document of the form
//
//	limits:
//	  free: 3
//	  admin: -1
//
// Entries override the defaults; classifications not listed keep their default limit.
func LoadFile(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quota policy: %w", err)
	}
	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse quota policy: %w", err)
	}

	merged := make(map[string]int, len(DefaultLimits)+len(doc.Limits))
	for k, v := range DefaultLimits {
		merged[k] = v
	}
	for k, v := range doc.Limits {
		merged[k] = v
	}
	return NewPolicy(merged), nil
}

// QuotaFor returns the limit or Unlimited. Unknown classifications get 0.
func (p *Policy) QuotaFor(classification string) int {
	if p == nil {
		return 0
	}
	limit, ok := p.limits[normalize(classification)]
	if !ok {
		return 0
	}
	return limit
}

func (p *Policy) IsUnlimited(classification string) bool {
	return p.QuotaFor(classification) == Unlimited
}

// Remaining is max(0, quota - active); unlimited classifications get math.MaxInt.
func (p *Policy) Remaining(classification string, active int) int {
	limit := p.QuotaFor(classification)
	if limit == Unlimited {
		return math.MaxInt
	}
	if active >= limit {
		return 0
	}
	return limit - active
}

// Allows reports whether a requester holding active appointments may book one more.
func (p *Policy) Allows(classification string, active int) bool {
	return p.Remaining(classification, active) > 0
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
