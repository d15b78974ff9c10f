package main

import (
	"go-token-auth/app"
)

func main() {
	app.Run()
}
