// Command docindex indexes local documents into SQLite and searches their
// text from the command line or over MCP.
package main

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	Execute()
}
