// Entry point for the verification harness CLI
package main

import "checkin.engine/internal/cli"

func main() {
	cli.Execute()
}
