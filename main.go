package main

import "github.com/akwaba/rentpay/cmd"

func main() {
	cmd.Execute()
}
