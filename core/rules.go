package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StatusDone is the record status required when a rule carries no status constraint.
const StatusDone = "DONE"

const (
	// PlatformAny requires a record to carry at least one platform tag.
	PlatformAny = "ANY"
	// PlatformAll on a record satisfies every specific platform constraint.
	PlatformAll = "ALL"
)

// ConstraintKind names a constraint variant on the wire.
type ConstraintKind string

const (
	KindStatus   ConstraintKind = "status"
	KindGroup    ConstraintKind = "group"
	KindPlatform ConstraintKind = "platform"
	KindFormat   ConstraintKind = "format"
)

// Constraint is one attribute test of a Rule. The set of implementations is closed.
type Constraint interface {
	Kind() ConstraintKind
	constraint()
}

// StatusEquals requires an exact record status.
type StatusEquals struct{ Status string }

// GroupEquals requires an exact channel/group identifier.
type GroupEquals struct{ Group string }

// PlatformIn requires a platform tag; see PlatformAny and PlatformAll.
type PlatformIn struct{ Platform string }

// FormatIn requires the record format to be one of Formats.
type FormatIn struct{ Formats []string }

func (StatusEquals) Kind() ConstraintKind { return KindStatus }
func (GroupEquals) Kind() ConstraintKind  { return KindGroup }
func (PlatformIn) Kind() ConstraintKind   { return KindPlatform }
func (FormatIn) Kind() ConstraintKind     { return KindFormat }

func (StatusEquals) constraint() {}
func (GroupEquals) constraint()  {}
func (PlatformIn) constraint()   {}
func (FormatIn) constraint()     {}

// Rule is the conjunction of its constraints. An empty rule matches any done record.
type Rule []Constraint

// ConstraintSpec is the flat, serializable form of a Constraint.
type ConstraintSpec struct {
	Kind     ConstraintKind `json:"kind" yaml:"kind"`
	Status   string         `json:"status,omitempty" yaml:"status,omitempty"`
	Group    string         `json:"group,omitempty" yaml:"group,omitempty"`
	Platform string         `json:"platform,omitempty" yaml:"platform,omitempty"`
	Formats  []string       `json:"formats,omitempty" yaml:"formats,omitempty"`
}

// Constraint converts the serialized form into its typed variant.
func (c ConstraintSpec) Constraint() (Constraint, error) {
	switch c.Kind {
	case KindStatus:
		return StatusEquals{Status: c.Status}, nil
	case KindGroup:
		return GroupEquals{Group: c.Group}, nil
	case KindPlatform:
		return PlatformIn{Platform: c.Platform}, nil
	case KindFormat:
		return FormatIn{Formats: append([]string(nil), c.Formats...)}, nil
	default:
		return nil, fmt.Errorf("unknown constraint kind %q", c.Kind)
	}
}

// RuleFromSpecs builds a Rule from serialized constraints.
func RuleFromSpecs(specs []ConstraintSpec) (Rule, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	r := make(Rule, 0, len(specs))
	for _, s := range specs {
		c, err := s.Constraint()
		if err != nil {
			return nil, err
		}
		r = append(r, c)
	}
	return r, nil
}

// Specs flattens the rule for serialization.
func (r Rule) Specs() []ConstraintSpec {
	out := make([]ConstraintSpec, 0, len(r))
	for _, c := range r {
		switch v := c.(type) {
		case StatusEquals:
			out = append(out, ConstraintSpec{Kind: KindStatus, Status: v.Status})
		case GroupEquals:
			out = append(out, ConstraintSpec{Kind: KindGroup, Group: v.Group})
		case PlatformIn:
			out = append(out, ConstraintSpec{Kind: KindPlatform, Platform: v.Platform})
		case FormatIn:
			out = append(out, ConstraintSpec{Kind: KindFormat, Formats: append([]string(nil), v.Formats...)})
		}
	}
	return out
}

// Validate rejects empty values and duplicate kinds.
func (r Rule) Validate() error {
	var errs []string
	seen := make(map[ConstraintKind]bool, len(r))
	for i, c := range r {
		if c == nil {
			errs = append(errs, fmt.Sprintf("rule[%d] is nil", i))
			continue
		}
		if seen[c.Kind()] {
			errs = append(errs, fmt.Sprintf("rule[%d] duplicates %s constraint", i, c.Kind()))
		}
		seen[c.Kind()] = true
		switch v := c.(type) {
		case StatusEquals:
			if strings.TrimSpace(v.Status) == "" {
				errs = append(errs, fmt.Sprintf("rule[%d] status cannot be empty", i))
			}
		case GroupEquals:
			if strings.TrimSpace(v.Group) == "" {
				errs = append(errs, fmt.Sprintf("rule[%d] group cannot be empty", i))
			}
		case PlatformIn:
			if strings.TrimSpace(v.Platform) == "" {
				errs = append(errs, fmt.Sprintf("rule[%d] platform cannot be empty", i))
			}
		case FormatIn:
			for j, f := range v.Formats {
				if strings.TrimSpace(f) == "" {
					errs = append(errs, fmt.Sprintf("rule[%d] formats[%d] is empty", i, j))
				}
			}
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	if r == nil {
		return nil
	}
	cp := make(Rule, len(r))
	for i, c := range r {
		if f, ok := c.(FormatIn); ok {
			c = FormatIn{Formats: append([]string(nil), f.Formats...)}
		}
		cp[i] = c
	}
	return cp
}

func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Specs())
}

func (r *Rule) UnmarshalJSON(b []byte) error {
	var specs []ConstraintSpec
	if err := json.Unmarshal(b, &specs); err != nil {
		return err
	}
	rule, err := RuleFromSpecs(specs)
	if err != nil {
		return err
	}
	*r = rule
	return nil
}
