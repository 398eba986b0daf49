package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/wellkeeper/internal/admin"
)

func main() {
	if err := admin.NewRootCmd(admin.OpenPostgres).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
