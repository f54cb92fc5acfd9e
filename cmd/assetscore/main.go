// Command assetscore scores physical assets from their age and maintenance
// events under a configurable scoring policy.
package main

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	Execute()
}
