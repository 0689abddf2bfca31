package protocol

import "fmt"

type Opcode uint8

type LengthKind uint8

const (
	kindUndefined LengthKind = iota
	KindFixed
	KindBytePrefixed
	KindShortPrefixed
	KindTerminated
)

func (k LengthKind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindBytePrefixed:
		return "byte"
	case KindShortPrefixed:
		return "short"
	case KindTerminated:
		return "terminated"
	default:
		return "undefined"
	}
}

// LengthRule describes how the payload length of one opcode is determined.
type LengthRule struct {
	Kind LengthKind
	Size int
}

func Fixed(n int) LengthRule {
	return LengthRule{Kind: KindFixed, Size: n}
}

var (
	BytePrefixed  = LengthRule{Kind: KindBytePrefixed}
	ShortPrefixed = LengthRule{Kind: KindShortPrefixed}
	Terminated    = LengthRule{Kind: KindTerminated}
)

func (r LengthRule) String() string {
	if r.Kind == KindFixed {
		return fmt.Sprintf("fixed(%d)", r.Size)
	}
	return r.Kind.String()
}

// measure inspects buf, which starts just after the opcode byte, and reports
// how many header bytes precede the payload, the payload size, and how many
// bytes the whole frame body consumes. ok is false while more input is needed.
func (r LengthRule) measure(buf []byte, max int) (header, size, consumed int, ok bool, err error) {
	switch r.Kind {
	case KindFixed:
		size = r.Size
	case KindBytePrefixed:
		if len(buf) < 1 {
			return 0, 0, 0, false, nil
		}
		header, size = 1, int(buf[0])
	case KindShortPrefixed:
		if len(buf) < 2 {
			return 0, 0, 0, false, nil
		}
		header, size = 2, int(buf[0])<<8|int(buf[1])
	case KindTerminated:
		for i, b := range buf {
			if i > max {
				break
			}
			if b == 0 {
				return 0, i, i + 1, true, nil
			}
		}
		if len(buf) > max {
			return 0, 0, 0, false, ErrFrameTooLarge
		}
		return 0, 0, 0, false, nil
	default:
		return 0, 0, 0, false, ErrUnknownOpcode
	}

	if size > max {
		return 0, 0, 0, false, ErrFrameTooLarge
	}
	if len(buf) < header+size {
		return 0, 0, 0, false, nil
	}
	return header, size, header + size, true, nil
}

// Table maps every opcode of one protocol phase and direction to its length
// rule. Tables are built once and never modified.
type Table struct {
	name  string
	rules [256]LengthRule
}

func NewTable(name string, rules map[Opcode]LengthRule) *Table {
	t := &Table{name: name}
	for op, r := range rules {
		t.rules[op] = r
	}
	return t
}

func (t *Table) Name() string {
	return t.name
}

// Rule returns the rule for op, or false when op is not part of the table.
func (t *Table) Rule(op Opcode) (LengthRule, bool) {
	r := t.rules[op]
	return r, r.Kind != kindUndefined
}
