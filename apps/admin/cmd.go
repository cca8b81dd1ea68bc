package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/auth"
	"github.com/trezcool/trafikkvakt/core/duty"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf *core.Config
	out  io.Writer
	repo duty.Repository // set for seed
	db   *sqlx.DB        // set for migrate
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  hashpassword - prompt for the admin password and print its ADMIN_PASSWORD_HASH")
	fmt.Fprintln(cli.out, "  token [-expires DURATION] - print a signed admin token")
	fmt.Fprintln(cli.out, "  seed -file FILE - load children, crossings and schedule from a YAML file")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command against the SQL database")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenExpires := tokenCmd.Duration("expires", 0, "How long the token is valid. Defaults to the configured JWT expiration.")
	seedCmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	seedFile := seedCmd.String("file", "", "The YAML file to load.")
	tokenCmd.SetOutput(cli.out)
	seedCmd.SetOutput(cli.out)

	switch args[1] {
	case "hashpassword":
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			cli.printUsage()
			return errHelp
		}
		return cli.hashPassword(string(pwd))
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.token(*tokenExpires)
	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *seedFile == "" {
			seedCmd.Usage()
			return errHelp
		}
		return cli.seed(*seedFile)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) hashPassword(pwd string) error {
	hash, err := auth.HashPassword(pwd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, hash)
	return nil
}

func (cli *commandLine) token(expires time.Duration) error {
	conf := *cli.conf
	if expires > 0 {
		conf.Auth.JWTExpirationDelta = expires
	}
	token, err := auth.GenerateToken(auth.NewAdminClaims(&conf), conf.SecretKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
