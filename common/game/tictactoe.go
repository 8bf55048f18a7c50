// Package game implements the tic-tac-toe rules carried as payload by the
// request/reply protocol.
//
// Cells are numbered 1-9 in numpad layout:
//
//	7 | 8 | 9
//	4 | 5 | 6
//	1 | 2 | 3
//
// The requester is the client, the responder is the server. Move 0 means
// "no move".
package game

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Status is the game outcome reported in every reply.
type Status uint8

const (
	InProgress Status = iota
	RequesterWins
	ResponderWins
	Tie
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "in-progress"
	case RequesterWins:
		return "requester-wins"
	case ResponderWins:
		return "responder-wins"
	case Tie:
		return "tie"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Final reports whether no further moves are accepted.
func (s Status) Final() bool {
	return s != InProgress
}

// Role tokens used to bootstrap a session.
const (
	RoleRequesterFirst = "X"
	RoleResponderFirst = "O"
)

// NoMove is the move value meaning the responder did not play.
const NoMove = 0

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrUnknownRole = errors.New("unknown role")
	ErrBadReply    = errors.New("malformed reply")
)

const fullBoard uint16 = 0b1111111110

var lines = [8]uint16{
	cellsMask(1, 2, 3), cellsMask(4, 5, 6), cellsMask(7, 8, 9),
	cellsMask(1, 4, 7), cellsMask(2, 5, 8), cellsMask(3, 6, 9),
	cellsMask(3, 5, 7), cellsMask(1, 5, 9),
}

func cellsMask(cells ...int) uint16 {
	var m uint16
	for _, c := range cells {
		m |= 1 << c
	}
	return m
}

// Board holds both players' cells as bitmasks (bit n = cell n).
type Board struct {
	Requester uint16
	Responder uint16
}

// IsFree reports whether cell is on the board and unoccupied.
func (b Board) IsFree(cell int) bool {
	if cell < 1 || cell > 9 {
		return false
	}
	return (b.Requester|b.Responder)&(1<<cell) == 0
}

// Free lists the unoccupied cells in ascending order.
func (b Board) Free() []int {
	free := make([]int, 0, 9)
	for c := 1; c <= 9; c++ {
		if b.IsFree(c) {
			free = append(free, c)
		}
	}
	return free
}

// Moves returns the number of cells played.
func (b Board) Moves() int {
	return bits.OnesCount16(b.Requester | b.Responder)
}

// PlaceRequester returns b with the requester on cell.
func (b Board) PlaceRequester(cell int) (Board, error) {
	if !b.IsFree(cell) {
		return b, fmt.Errorf("%w: cell %d", ErrIllegalMove, cell)
	}
	b.Requester |= 1 << cell
	return b, nil
}

// PlaceResponder returns b with the responder on cell.
func (b Board) PlaceResponder(cell int) (Board, error) {
	if !b.IsFree(cell) {
		return b, fmt.Errorf("%w: cell %d", ErrIllegalMove, cell)
	}
	b.Responder |= 1 << cell
	return b, nil
}

// Status evaluates the board.
func (b Board) Status() Status {
	switch {
	case wins(b.Requester):
		return RequesterWins
	case wins(b.Responder):
		return ResponderWins
	case (b.Requester|b.Responder)&fullBoard == fullBoard:
		return Tie
	default:
		return InProgress
	}
}

// Has reports who holds cell: 1 requester, 2 responder, 0 nobody.
func (b Board) Has(cell int) int {
	switch {
	case b.Requester&(1<<cell) != 0:
		return 1
	case b.Responder&(1<<cell) != 0:
		return 2
	default:
		return 0
	}
}

func wins(m uint16) bool {
	for _, l := range lines {
		if m&l == l {
			return true
		}
	}
	return false
}

// Picker chooses the responder's cell among free ones. free is never empty.
type Picker func(free []int) int

// Start opens a game for role. A responder-first game places the
// responder's opening move immediately.
func Start(role string, pick Picker) (Board, int, Status, error) {
	var b Board
	switch role {
	case RoleRequesterFirst:
		return b, NoMove, InProgress, nil
	case RoleResponderFirst:
		move := pick(b.Free())
		b, err := b.PlaceResponder(move)
		if err != nil {
			return b, NoMove, InProgress, err
		}
		return b, move, InProgress, nil
	default:
		return b, NoMove, InProgress, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

// Apply plays the requester's move and, if the game goes on, the
// responder's answer.
func Apply(b Board, move int, pick Picker) (Board, int, Status, error) {
	if b.Status().Final() {
		return b, NoMove, b.Status(), fmt.Errorf("%w: game is over", ErrIllegalMove)
	}
	b, err := b.PlaceRequester(move)
	if err != nil {
		return b, NoMove, InProgress, err
	}
	if st := b.Status(); st.Final() {
		return b, NoMove, st, nil
	}

	reply := pick(b.Free())
	b, err = b.PlaceResponder(reply)
	if err != nil {
		return b, NoMove, InProgress, err
	}
	return b, reply, b.Status(), nil
}

// IsRole reports whether token is a bootstrap role token.
func IsRole(token string) bool {
	return token == RoleRequesterFirst || token == RoleResponderFirst
}

// ParseMove parses a move body.
func ParseMove(body string) (int, error) {
	move, err := strconv.Atoi(body)
	if err != nil || move < 1 || move > 9 {
		return 0, fmt.Errorf("%w: %q", ErrIllegalMove, body)
	}
	return move, nil
}

// FormatReply renders a reply body "<move> <status>".
func FormatReply(move int, status Status) string {
	return strconv.Itoa(move) + " " + strconv.Itoa(int(status))
}

// ParseReply parses a reply body "<move> <status>".
func ParseReply(body string) (int, Status, error) {
	fields := strings.Split(body, " ")
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadReply, body)
	}
	move, err := strconv.Atoi(fields[0])
	if err != nil || move < 0 || move > 9 {
		return 0, 0, fmt.Errorf("%w: move %q", ErrBadReply, fields[0])
	}
	st, err := strconv.Atoi(fields[1])
	if err != nil || st < int(InProgress) || st > int(Tie) {
		return 0, 0, fmt.Errorf("%w: status %q", ErrBadReply, fields[1])
	}
	return move, Status(st), nil
}
