// cmd/docverify/main.go
package main

import (
	"context"
	"os"

	"github.com/dalemusser/docverify/app"
	"github.com/dalemusser/docverify/internal/app/bootstrap"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		os.Exit(1)
	}
}
