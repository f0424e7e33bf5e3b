package main

import (
	"os"

	"unraid-backup/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
