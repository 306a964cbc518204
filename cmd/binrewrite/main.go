package main

import (
	"os"

	"binrewrite/internal/driver"
)

func main() {
	os.Exit(driver.Run(os.Args[1:]))
}
