package main

import (
	"os"

	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/anisync/cmd/anisync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
