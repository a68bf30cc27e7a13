package main

import (
	"go-playlist-download/cmd/playlist-downloader/cmd"
)

func main() {
	cmd.Execute()
}
