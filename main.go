package main

import "github.com/hypervisual/banklink/cmd/root"

func main() {
	root.Execute()
}
