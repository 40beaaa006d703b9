package main

import (
	cmd "github.com/cozy-creator/image-ingest/cmd/ingest"
)

func main() {
	cmd.Execute()
}
