package main

import (
	"fmt"
	"os"

	"solarweb-terminal/cmd"
	"solarweb-terminal/pkg/core"
)

const VERSION = "0.1.0"

func main() {
	core.InitLogger("info")

	if err := cmd.Execute(VERSION); err != nil {
		fmt.Println("Command execution failed")
		os.Exit(1)
	}
}
