// Command socks5gateway runs the local SOCKS5 gateway.
package main

import "github.com/romeomihailus/socks5gateway/cmd"

func main() {
	cmd.Execute()
}
