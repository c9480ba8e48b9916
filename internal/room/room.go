package room

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxDistance marks a room that is not a ranked candidate (unparseable,
// busy, or failed to evaluate). It always sorts last.
const MaxDistance uint64 = math.MaxUint64

const (
	blockWeight = 1000
	floorWeight = 100
)

// ErrInvalid is returned (wrapped) by Parse for malformed room codes.
var ErrInvalid = errors.New("invalid room code")

// ID is a structured room code such as "B212": block B, floor 2, number 12.
type ID struct {
	Block  rune
	Floor  uint8
	Number uint64
}

// Parse parses a compact room code. The block letter is upper-cased.
func Parse(code string) (ID, error) {
	if utf8.RuneCountInString(code) < 3 {
		return ID{}, fmt.Errorf("%w: %q is too short", ErrInvalid, code)
	}

	block, size := utf8.DecodeRuneInString(code)
	rest := code[size:]
	floor, fsize := utf8.DecodeRuneInString(rest)
	if floor < '0' || floor > '9' {
		return ID{}, fmt.Errorf("%w: %q has no floor digit", ErrInvalid, code)
	}

	num := rest[fsize:]
	// ParseUint accepts neither signs nor whitespace.
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q has no room number", ErrInvalid, code)
	}

	return ID{
		Block:  unicode.ToUpper(block),
		Floor:  uint8(floor - '0'),
		Number: n,
	}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(code string) ID {
	id, err := Parse(code)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical form "<block><floor><number>".
func (id ID) String() string {
	var b strings.Builder
	b.WriteRune(id.Block)
	b.WriteByte('0' + id.Floor)
	b.WriteString(strconv.FormatUint(id.Number, 10))
	return b.String()
}

// Normalize upper-cases the block of a valid code and keeps the digits as
// written, so zero-padded numbers like "C101" keep their name. Codes that do
// not parse are returned unchanged.
func Normalize(code string) string {
	id, err := Parse(code)
	if err != nil {
		return code
	}
	_, size := utf8.DecodeRuneInString(code)
	return string(id.Block) + code[size:]
}

// Distance scores how far the room named by code is from dst.
// Unparseable codes score MaxDistance.
func Distance(dst ID, code string) uint64 {
	id, err := Parse(code)
	if err != nil {
		return MaxDistance
	}
	return dst.DistanceTo(id)
}

// DistanceTo is the weighted block/floor/number difference between two rooms.
// The result saturates below MaxDistance.
func (id ID) DistanceTo(other ID) uint64 {
	blocks := absDiff(uint64(id.Block), uint64(other.Block))
	floors := absDiff(uint64(id.Floor), uint64(other.Floor))
	numbers := absDiff(id.Number, other.Number)

	sum := satAdd(satMul(blocks, blockWeight), satMul(floors, floorWeight))
	return satAdd(sum, numbers)
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

const maxScore = MaxDistance - 1

func satMul(a, b uint64) uint64 {
	if a != 0 && b > maxScore/a {
		return maxScore
	}
	return a * b
}

func satAdd(a, b uint64) uint64 {
	if b > maxScore || a > maxScore-b {
		return maxScore
	}
	return a + b
}
