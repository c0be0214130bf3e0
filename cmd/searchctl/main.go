// Command searchctl builds, queries and inspects product indexes offline and
// load-tests a running search service.
package main

import "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/cli"

func main() {
	cli.Execute()
}
