package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	echoapi "github.com/trezcool/ecole/apps/api/echo"
	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/roster"
	"github.com/trezcool/ecole/core/user"
	"github.com/trezcool/ecole/storage/database"
)

var (
	isTerminalFunc = term.IsTerminal         // mockable
	gooseRunFunc   = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	db     *sqlx.DB
	roster *roster.Service
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                 - run a goose command (up, down, status, redo, version...)")
	fmt.Fprintln(cli.out, "  token -id ID -type TYPE [-name NAME]   - mint an API token for a user")
	fmt.Fprintln(cli.out, "  classes [-refresh]                     - print the establishment's classes")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenID := tokenCmd.Int64("id", 0, "The user's id.")
	tokenType := tokenCmd.String("type", "", "The user's type: "+joinTypes(user.AllTypes))
	tokenName := tokenCmd.String("name", "", "The user's display name.")

	classesCmd := flag.NewFlagSet("classes", flag.ContinueOnError)
	classesCmd.SetOutput(cli.out)
	classesRefresh := classesCmd.Bool("refresh", false, "Drop the cached class list first.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		typ, err := user.ParseType(*tokenType)
		if *tokenID <= 0 || err != nil {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(user.Principal{ID: *tokenID, Type: typ, Name: *tokenName})
	case "classes":
		if err := classesCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.classes(*classesRefresh)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}

// token prints a bare token when piped, with a short description on a terminal.
func (cli *commandLine) token(pr user.Principal) error {
	token, err := echoapi.GenerateToken(cli.conf, pr)
	if err != nil {
		return err
	}
	if isTerminalFunc(int(os.Stdout.Fd())) {
		fmt.Fprintf(cli.out, "Token for %s (valid %s):\n", pr.Ref(), cli.conf.Server.JWTExpirationDelta)
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func (cli *commandLine) classes(refresh bool) error {
	ctx := context.Background()
	if refresh {
		if err := cli.roster.InvalidateClasses(ctx); err != nil {
			return err
		}
	}
	classes, err := cli.roster.Classes(ctx)
	if err != nil {
		return err
	}
	for _, class := range classes {
		fmt.Fprintln(cli.out, class)
	}
	return nil
}

func joinTypes(types []user.Type) string {
	s := make([]string, len(types))
	for i, t := range types {
		s[i] = string(t)
	}
	return strings.Join(s, ", ")
}
