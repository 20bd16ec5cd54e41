// expectd is a programmable HTTP mock server and proxy.
package main

import "github.com/getmockd/expectd/pkg/cli"

func main() {
	cli.Execute()
}
