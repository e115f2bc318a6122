package main

import (
	"github.com/joho/godotenv"

	"github.com/oshokin/wallet-pass/cmd/contact-cards/cmd"
)

func main() {
	_ = godotenv.Load()

	cmd.Execute()
}
