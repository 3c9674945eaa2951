// Command larder-hashkey reads a family master key from stdin and prints a
// bcrypt hash suitable for FAMILY_MASTER_KEY_HASH.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/bootstrap"
)

func main() {
	cost := flag.Int("cost", auth.MinSecretCost, "bcrypt cost (minimum 12)")
	flag.Parse()

	if err := run(os.Stdin, os.Stdout, *cost); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer, cost int) error {
	if cost < auth.MinSecretCost {
		return fmt.Errorf("cost %d is below the minimum of %d", cost, auth.MinSecretCost)
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read key: %w", err)
	}
	key := strings.TrimRight(line, "\r\n")
	if key == "" {
		return errors.New("no key given on stdin")
	}

	secret, err := bootstrap.NewSharedSecret(key, "", cost)
	if err != nil {
		return err
	}
	hash, err := secret.Hash()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, hash)
	return err
}
