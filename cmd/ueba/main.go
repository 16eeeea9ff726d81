package main

const version = "0.3.0"

func main() {
	Execute(version)
}
