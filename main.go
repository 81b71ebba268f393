package main

import "github.com/sokofone/ms-go-airtime/cmd"

func main() {
	cmd.Execute()
}
