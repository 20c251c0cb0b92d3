package main

import "github.com/markplatform/gateway/cmd/markgw/cmd"

func main() {
	cmd.Execute()
}
