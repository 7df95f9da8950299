// Command tokengen mints an HS256 access token for a user id, for local
// development against a vaultsync server. The signing secret comes from
// VAULTSYNC_SECRET_KEY or is read from the terminal.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/server/auth"
	"golang.org/x/term"
)

const secretEnv = "VAULTSYNC_SECRET_KEY"

func main() {
	if err := run(os.Args[1:], os.Getenv, promptSecret, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

func promptSecret() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is not set and stdin is not a terminal", secretEnv)
	}
	fmt.Fprint(os.Stderr, "Secret key: ")
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}

func run(args []string, getenv func(string) string, readSecret func() ([]byte, error), out io.Writer) error {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("u", "", "user id to put into the token")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("user id is required (-u)")
	}
	if *ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	secret := []byte(getenv(secretEnv))
	if len(secret) == 0 {
		s, err := readSecret()
		if err != nil {
			return err
		}
		secret = s
	}
	if len(secret) == 0 {
		return errors.New("empty secret key")
	}

	token, err := auth.GenerateToken(*user, secret, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
