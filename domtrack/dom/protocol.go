package dom

import (
	"fmt"
	"strconv"
	"strings"
)

// ChangeKind is the event carried by a wire message.
type ChangeKind int

const (
	Added ChangeKind = iota
	UpdatedRects
	UpdatedFixed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case UpdatedRects:
		return "updated_rects"
	case UpdatedFixed:
		return "updated_fixed"
	}
	return "change_kind(" + strconv.Itoa(int(k)) + ")"
}

// Wire constants.
const (
	WirePrefix       = "DOM"
	DiagnosticPrefix = "ERROR: "

	opAdd    = "add"
	opUpdate = "upd"

	// attrMarker precedes every update payload.
	attrMarker = "1"
)

var opCodes = map[ChangeKind]string{
	Added:        opAdd,
	UpdatedRects: opUpdate,
	UpdatedFixed: opUpdate,
}

// Encode renders the wire message for kind on tn:
//
//	DOM#add#<type>#<id>#
//	DOM#upd#<type>#<id>#1#[top,left,bottom,right];...;#
//	DOM#upd#<type>#<id>#1#<0|1>#
//
// Floats use the shortest decimal that round-trips, without exponent.
func Encode(tn *TrackedNode, kind ChangeKind) (string, error) {
	if tn == nil || !tn.tagged {
		return "", fmt.Errorf("dom: encode %s: %w", kind, ErrMissingIdentifier)
	}
	op, ok := opCodes[kind]
	if !ok {
		return "", fmt.Errorf("dom: encode: %w: %d", ErrUnknownChangeKind, int(kind))
	}

	var b strings.Builder
	b.WriteString(WirePrefix)
	b.WriteByte('#')
	b.WriteString(op)
	b.WriteByte('#')
	b.WriteString(strconv.FormatUint(uint64(tn.category), 10))
	b.WriteByte('#')
	b.WriteString(strconv.FormatUint(uint64(tn.id), 10))
	b.WriteByte('#')

	switch kind {
	case UpdatedRects:
		b.WriteString(attrMarker)
		b.WriteByte('#')
		for _, r := range AdjustRects(tn.rects) {
			writeRect(&b, r)
			b.WriteByte(';')
		}
		b.WriteByte('#')
	case UpdatedFixed:
		b.WriteString(attrMarker)
		b.WriteByte('#')
		if tn.fixed {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
		b.WriteByte('#')
	}
	return b.String(), nil
}

func writeRect(b *strings.Builder, r [4]float64) {
	b.WriteByte('[')
	for i, v := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(FormatFloat(v))
	}
	b.WriteByte(']')
}

// FormatFloat is the wire representation of a coordinate.
func FormatFloat(v float64) string {
	if v == 0 {
		v = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Message is a decoded wire message. Diagnostic is set, and the other
// fields are zero, for ERROR: lines.
type Message struct {
	Kind       ChangeKind
	Category   Category
	ID         uint
	Rects      [][4]float64
	Fixed      bool
	Diagnostic string
}

// IsDiagnostic reports whether m came from an ERROR: line.
func (m Message) IsDiagnostic() bool { return m.Diagnostic != "" }

// Decode parses a message produced by Encode or a diagnostic line.
// A fixed-status payload is a bare 0 or 1; anything else after the
// attribute marker is read as a rect list.
func Decode(msg string) (Message, error) {
	if rest, ok := strings.CutPrefix(msg, DiagnosticPrefix); ok {
		return Message{Diagnostic: rest}, nil
	}
	if !strings.HasPrefix(msg, WirePrefix+"#") || !strings.HasSuffix(msg, "#") {
		return Message{}, fmt.Errorf("dom: decode %q: %w", msg, ErrMalformedMessage)
	}

	parts := strings.Split(msg, "#")
	if len(parts) < 5 {
		return Message{}, fmt.Errorf("dom: decode %q: %w: too few fields", msg, ErrMalformedMessage)
	}

	var m Message
	cat, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return Message{}, fmt.Errorf("dom: decode %q: %w: type", msg, ErrMalformedMessage)
	}
	id, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return Message{}, fmt.Errorf("dom: decode %q: %w: id", msg, ErrMalformedMessage)
	}
	m.Category, m.ID = Category(cat), uint(id)

	switch parts[1] {
	case opAdd:
		if len(parts) != 5 {
			return Message{}, fmt.Errorf("dom: decode %q: %w: trailing payload on add", msg, ErrMalformedMessage)
		}
		m.Kind = Added
		return m, nil
	case opUpdate:
	default:
		return Message{}, fmt.Errorf("dom: decode %q: %w: op %q", msg, ErrMalformedMessage, parts[1])
	}

	if len(parts) != 7 || parts[4] != attrMarker {
		return Message{}, fmt.Errorf("dom: decode %q: %w: update payload", msg, ErrMalformedMessage)
	}
	payload := parts[5]
	switch payload {
	case "0", "1":
		m.Kind = UpdatedFixed
		m.Fixed = payload == "1"
		return m, nil
	}

	m.Kind = UpdatedRects
	rects, err := parseRects(payload)
	if err != nil {
		return Message{}, fmt.Errorf("dom: decode %q: %w", msg, err)
	}
	m.Rects = rects
	return m, nil
}

func parseRects(payload string) ([][4]float64, error) {
	if payload == "" {
		return [][4]float64{}, nil
	}
	if !strings.HasSuffix(payload, ";") {
		return nil, fmt.Errorf("%w: unterminated rect list", ErrMalformedMessage)
	}
	items := strings.Split(strings.TrimSuffix(payload, ";"), ";")
	out := make([][4]float64, 0, len(items))
	for _, item := range items {
		inner, ok := strings.CutPrefix(item, "[")
		if !ok {
			return nil, fmt.Errorf("%w: rect %q", ErrMalformedMessage, item)
		}
		inner, ok = strings.CutSuffix(inner, "]")
		if !ok {
			return nil, fmt.Errorf("%w: rect %q", ErrMalformedMessage, item)
		}
		vals := strings.Split(inner, ",")
		if len(vals) != 4 {
			return nil, fmt.Errorf("%w: rect %q has %d values", ErrMalformedMessage, item, len(vals))
		}
		var r [4]float64
		for i, v := range vals {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: rect %q: %v", ErrMalformedMessage, item, err)
			}
			r[i] = f
		}
		out = append(out, r)
	}
	return out, nil
}
