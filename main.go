package main

import "losort/internal/app"

func main() {
	app.Main()
}
