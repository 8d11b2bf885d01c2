package activity

import (
	"fmt"
	"strconv"
	"strings"
)

// Optional is a predicate field that is either unset or constrained to an
// exact value.
type Optional struct {
	value string
	set   bool
}

// Exactly constrains a field to v.
func Exactly(v string) Optional { return Optional{value: v, set: true} }

// Get returns the constraint value and whether the field is constrained.
func (o Optional) Get() (string, bool) { return o.value, o.set }

// Predicate selects records of one kind. Every constrained field must equal
// the record's field byte for byte; unset fields are ignored. Timestamps are
// never part of matching.
type Predicate struct {
	Kind   Kind
	Body   Optional
	Sender Optional
	Target Optional
}

// Constraint adds one field constraint to a predicate under construction.
type Constraint func(*Predicate)

// WithBody constrains the SMS text.
func WithBody(v string) Constraint { return func(p *Predicate) { p.Body = Exactly(v) } }

// WithSender constrains the originating phone number of an SMS or call.
func WithSender(v string) Constraint { return func(p *Predicate) { p.Sender = Exactly(v) } }

// WithTarget constrains the URL of a data request.
func WithTarget(v string) Constraint { return func(p *Predicate) { p.Target = Exactly(v) } }

// NewPredicate builds and validates a predicate for kind.
func NewPredicate(kind Kind, cs ...Constraint) (Predicate, error) {
	p := Predicate{Kind: kind}
	for _, c := range cs {
		c(&p)
	}
	if err := p.Validate(); err != nil {
		return Predicate{}, err
	}
	return p, nil
}

var allowedFields = map[Kind][]Field{
	KindSMS:  {FieldBody, FieldSender},
	KindCall: {FieldSender},
	KindData: {FieldTarget},
}

// Validate checks the kind and that only fields the kind carries are set.
func (p Predicate) Validate() error {
	if err := p.Kind.Check(); err != nil {
		return err
	}
	for _, f := range p.constrained() {
		if !fieldAllowed(p.Kind, f) {
			return fmt.Errorf("%w: %s predicate cannot constrain %q", ErrInvalidArgument, p.Kind, string(f))
		}
	}
	return nil
}

// Matches reports whether r satisfies every constrained field of p.
func (p Predicate) Matches(r Record) bool {
	if r == nil || r.Kind() != p.Kind {
		return false
	}
	for _, f := range p.constrained() {
		want, _ := p.field(f).Get()
		got, ok := r.Value(f)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// String renders p as kind{field="value",...}, used in logs and the journal.
func (p Predicate) String() string {
	var b strings.Builder
	b.WriteString(string(p.Kind))
	b.WriteByte('{')
	for i, f := range p.constrained() {
		if i > 0 {
			b.WriteByte(',')
		}
		v, _ := p.field(f).Get()
		b.WriteString(string(f))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(v))
	}
	b.WriteByte('}')
	return b.String()
}

func (p Predicate) constrained() []Field {
	var out []Field
	for _, f := range []Field{FieldBody, FieldSender, FieldTarget} {
		if _, ok := p.field(f).Get(); ok {
			out = append(out, f)
		}
	}
	return out
}

func (p Predicate) field(f Field) Optional {
	switch f {
	case FieldBody:
		return p.Body
	case FieldSender:
		return p.Sender
	case FieldTarget:
		return p.Target
	}
	return Optional{}
}

func fieldAllowed(k Kind, f Field) bool {
	for _, allowed := range allowedFields[k] {
		if allowed == f {
			return true
		}
	}
	return false
}
