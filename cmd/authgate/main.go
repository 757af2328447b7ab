package main

import "github.com/upb/authgate/cmd/authgate/cmd"

func main() {
	cmd.Execute()
}
