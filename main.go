package main

import "github.com/vibast-solutions/ms-go-mpesa/cmd"

func main() {
	cmd.Execute()
}
