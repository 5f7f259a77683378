package votes

import (
	"strconv"
	"strings"
)

// Symbol is a named vote value.
type Symbol string

const (
	Up     Symbol = "up"
	Down   Symbol = "down"
	Gold   Symbol = "gold"
	Silver Symbol = "silver"
	Bronze Symbol = "bronze"
)

// Tier magnitudes.
const (
	GoldValue   = 3
	SilverValue = 2
	BronzeValue = 1
)

var symbolValues = map[Symbol]int{
	Up:     1,
	Down:   -1,
	Gold:   GoldValue,
	Silver: SilverValue,
	Bronze: BronzeValue,
}

// Value is either a symbol or a raw magnitude. The zero Value is "missing".
type Value struct {
	symbol    Symbol
	magnitude int
	set       bool
}

func Sym(s Symbol) Value {
	return Value{symbol: s, set: true}
}

func Magnitude(n int) Value {
	return Value{magnitude: n, set: true}
}

// ParseValue accepts a symbol name or a signed integer. An empty string is a missing value.
func ParseValue(s string) (Value, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Value{}, nil
	}
	if _, ok := symbolValues[Symbol(s)]; ok {
		return Sym(Symbol(s)), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Value{}, invalidVote("unrecognized value %q", s)
	}
	return Magnitude(n), nil
}

// IsSet reports whether a value was supplied at all.
func (v Value) IsSet() bool {
	return v.set
}

// Resolve maps the value to the signed integer stored in the ledger.
func (v Value) Resolve() (int, error) {
	if !v.set {
		return 0, ErrMissingValue
	}
	if v.symbol != "" {
		n, ok := symbolValues[v.symbol]
		if !ok {
			return 0, invalidVote("unrecognized value %q", v.symbol)
		}
		return n, nil
	}
	if v.magnitude == 0 {
		return 0, invalidVote("value must be non-zero")
	}
	return v.magnitude, nil
}

func (v Value) String() string {
	switch {
	case !v.set:
		return ""
	case v.symbol != "":
		return string(v.symbol)
	default:
		return strconv.Itoa(v.magnitude)
	}
}

// Direction selects the voter-side counts of VoteCount.
type Direction int

const (
	All Direction = iota
	For
	Against
)

// ParseDirection accepts "all", "up"/"for" and "down"/"against".
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return All, true
	case "up", "for":
		return For, true
	case "down", "against":
		return Against, true
	}
	return All, false
}
