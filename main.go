/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/relaychat/backend/cmd"

func main() {
	cmd.Execute()
}
