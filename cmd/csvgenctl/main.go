// Command csvgenctl operates report jobs directly against Elasticsearch.
package main

import "os"

func main() {
	os.Exit(execute())
}
