package main

import (
	"os"

	"xdao.co/origin/internal/cli"

	_ "xdao.co/origin/registry/grpcreg"
	_ "xdao.co/origin/registry/localfs"
	_ "xdao.co/origin/registry/memory"
	_ "xdao.co/origin/registry/sqlite"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
