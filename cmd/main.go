// Command neardup finds near-duplicate web documents in a list of URLs or a
// crawled site, classifies the unique ones and reports the results.
//
// Usage:
//
//	neardup run --urls urls.txt --out results.csv --report summary.md
//	neardup run --crawl https://example.com --store
//	neardup serve --addr :8080
package main

func main() {
	Execute()
}
