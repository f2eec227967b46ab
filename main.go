package main

import "github.com/sdms/payment-core/cmd"

func main() {
	cmd.Execute()
}
