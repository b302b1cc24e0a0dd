package main

import "github.com/corpadmin/migration-api/internal/cli"

func main() {
	cli.Execute()
}
