package main

import "github.com/smallbiznis/valora-sleep/cmd/sleepctl/arg"

func main() {
	arg.Execute()
}
