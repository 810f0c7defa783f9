package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit returns an error making the cli exit with code after printing msg.
func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}
