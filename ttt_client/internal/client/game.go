package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iselt/ttt-udp/common/game"
	"go.uber.org/zap"
)

// Requester is the part of Client the game loop needs.
type Requester interface {
	Bootstrap(ctx context.Context, role string) (string, error)
	Request(ctx context.Context, body string) (string, error)
}

// Game plays one interactive game against the server.
type Game struct {
	requester   Requester
	in          *bufio.Scanner
	out         io.Writer
	logger      *zap.Logger
	clientFirst bool
	board       game.Board
}

// NewGame creates a game reading moves from in and printing to out.
func NewGame(requester Requester, clientFirst bool, in io.Reader, out io.Writer, logger *zap.Logger) *Game {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Game{
		requester:   requester,
		in:          bufio.NewScanner(in),
		out:         out,
		logger:      logger,
		clientFirst: clientFirst,
	}
}

// Play runs the game to its end and returns the final status.
func (g *Game) Play(ctx context.Context) (game.Status, error) {
	role := game.RoleResponderFirst
	if g.clientFirst {
		role = game.RoleRequesterFirst
	}

	body, err := g.requester.Bootstrap(ctx, role)
	if err != nil {
		return game.InProgress, err
	}
	if _, err := g.applyReply(body); err != nil {
		return game.InProgress, err
	}

	g.welcome()
	g.render()

	for {
		fmt.Fprintln(g.out, "Your Turn.")
		move, err := g.readMove()
		if err != nil {
			return game.InProgress, err
		}
		if g.board, err = g.board.PlaceRequester(move); err != nil {
			return game.InProgress, err
		}
		g.render()

		fmt.Fprintln(g.out, "Waiting for server ...")
		body, err := g.requester.Request(ctx, strconv.Itoa(move))
		if err != nil {
			return game.InProgress, err
		}
		status, err := g.applyReply(body)
		if err != nil {
			return game.InProgress, err
		}

		switch status {
		case game.InProgress:
			g.render()
			continue
		case game.RequesterWins:
			fmt.Fprintln(g.out, "You win.")
		case game.ResponderWins:
			g.render()
			fmt.Fprintln(g.out, "Server wins.")
		case game.Tie:
			g.render()
			fmt.Fprintln(g.out, "Game ends in a draw.")
		}
		return status, nil
	}
}

// applyReply places the server's move from a "<move> <status>" body.
func (g *Game) applyReply(body string) (game.Status, error) {
	move, status, err := game.ParseReply(body)
	if err != nil {
		return game.InProgress, err
	}
	if move != game.NoMove {
		next, err := g.board.PlaceResponder(move)
		if err != nil {
			return game.InProgress, fmt.Errorf("%w: server played %d: %w", game.ErrBadReply, move, err)
		}
		g.board = next
	}
	g.logger.Debug("Server replied", zap.Int("move", move), zap.Stringer("status", status))
	return status, nil
}

// readMove prompts until the user enters a free cell.
func (g *Game) readMove() (int, error) {
	for {
		fmt.Fprint(g.out, "Please enter your move: ")
		if !g.in.Scan() {
			if err := g.in.Err(); err != nil {
				return 0, err
			}
			return 0, io.ErrUnexpectedEOF
		}
		input := strings.TrimSpace(g.in.Text())
		move, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintln(g.out, "Invalid Input. Must be an integer from 1 to 9.")
			continue
		}
		if move < 1 || move > 9 || !g.board.IsFree(move) {
			fmt.Fprintf(g.out, "Invalid Input. Available moves are %v\n", g.board.Free())
			continue
		}
		return move, nil
	}
}

func (g *Game) welcome() {
	fmt.Fprintln(g.out, strings.Repeat("#", 64))
	fmt.Fprintln(g.out, "Welcome to tic tac toe.")
	fmt.Fprintln(g.out, "You can select your move by entering 1 - 9")
	fmt.Fprintln(g.out, "with the following layout (numpad layout):")
	fmt.Fprint(g.out, numpad)
	fmt.Fprintln(g.out, strings.Repeat("#", 64))
	if g.clientFirst {
		fmt.Fprintln(g.out, "You have the first move.")
	} else {
		fmt.Fprintln(g.out, "The server has the first move.")
	}
}

func (g *Game) render() {
	fmt.Fprint(g.out, Render(g.board, g.clientFirst))
}

const numpad = " 7 │ 8 │ 9 \n───┼───┼───\n 4 │ 5 │ 6 \n───┼───┼───\n 1 │ 2 │ 3 \n"

// Render draws b in numpad layout. The side that moved first plays X.
func Render(b game.Board, clientFirst bool) string {
	mine, theirs := "X", "O"
	if !clientFirst {
		mine, theirs = theirs, mine
	}

	var sb strings.Builder
	for row, cells := range [3][3]int{{7, 8, 9}, {4, 5, 6}, {1, 2, 3}} {
		if row > 0 {
			sb.WriteString("───┼───┼───\n")
		}
		for i, cell := range cells {
			if i > 0 {
				sb.WriteString("│")
			}
			mark := " "
			switch b.Has(cell) {
			case 1:
				mark = mine
			case 2:
				mark = theirs
			}
			sb.WriteString(" " + mark + " ")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
