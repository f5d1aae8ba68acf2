package main

import "github.com/pders01/searchable-files/cmd"

func main() {
	cmd.Execute()
}
