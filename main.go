package main

import (
	"SceneToVideo-server/cmd"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := cmd.Root().Execute(); err != nil {
		log.Fatal().Err(err).Send()
	}
}
