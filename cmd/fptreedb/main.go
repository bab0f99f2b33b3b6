/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"github.com/fptreedb/fptree/cmd/fptreedb/cmd"
)

func main() {
	cmd.Execute()
}
