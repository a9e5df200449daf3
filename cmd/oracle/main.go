package main

import "github.com/Memetic-Block/wuzzy-tx-oracle/internal/cli"

func main() {
	cli.Execute()
}
