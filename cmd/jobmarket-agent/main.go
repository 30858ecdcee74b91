// Command jobmarket-agent runs the client session agent: it keeps the
// marketplace session, revalidates it in the background and serves it to the
// front end over localhost HTTP and websocket.
package main

import (
	"fmt"
	"os"

	"jobmarket/cmd/internal/app"
)

func main() {
	if err := app.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
