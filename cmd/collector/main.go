package main

import (
	"context"

	"review_collector/cmd/collector/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
