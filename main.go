package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	compartment "github.com/putto11262002/compartment/app"
)

func main() {
	source := flag.String("config", "yaml", "configuration source: yaml or env")
	dir := flag.String("config-dir", ".", "directory searched for config.yaml")
	envFiles := flag.String("env-file", ".env", "comma separated dotenv files read when -config=env")
	flag.Parse()

	var loader compartment.ConfigLoader
	switch *source {
	case "yaml":
		loader = &compartment.ViperConfigLoader{Paths: []string{*dir}}
	case "env":
		loader = &compartment.EnvConfigLoader{Files: strings.Split(*envFiles, ",")}
	default:
		fmt.Fprintf(os.Stderr, "unknown config source %q\n", *source)
		os.Exit(2)
	}

	config, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	app, err := compartment.New(nil, config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	os.Exit(app.Start())
}
