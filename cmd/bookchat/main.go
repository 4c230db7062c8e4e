package main

import "github.com/entrepeneur4lyf/bookchat/cmd/bookchat/cmd"

func main() {
	cmd.Execute()
}
