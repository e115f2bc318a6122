package main

import (
	"github.com/joho/godotenv"

	"github.com/oshokin/wallet-pass/cmd/wallet-pass/cmd"
)

func main() {
	// The certificate password may come from a local .env file.
	_ = godotenv.Load()

	cmd.Execute()
}
