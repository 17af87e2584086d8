package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/rollcall/internal/client/cli"
)

func main() {

	ctx := context.Background()
	if err := cli.NewApp().NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}

}
