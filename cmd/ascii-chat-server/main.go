package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Command-line front-end for the ascii-chat server.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	asciichat "github.com/zfogg/ascii-chat/src"
)

func main() {
	var listen = pflag.StringP("listen", "l", "", "Listen address (default from config, then :9001).")
	var configFile = pflag.StringP("config-file", "c", "", "Configuration file name (default ~/.ascii-chat/config.yml).")
	var testPattern = pflag.BoolP("test-pattern", "t", false, "Stream the synthetic test pattern (the only video source in this build).")
	var renderer = pflag.StringP("renderer", "r", "", "Preferred renderer: block, halfblock, or braille.")
	var compression = pflag.StringP("compression", "z", "", "Frame compression: none, rle, or zstd.")
	var logLevel = pflag.StringP("log-level", "d", "", "Log level: debug, info, warn, error.")
	var showVersion = pflag.BoolP("version", "V", false, "Print version and exit.")
	pflag.Parse()

	if *showVersion {
		asciichat.PrintVersion(false)
		return
	}

	if *logLevel != "" {
		asciichat.LogSetLevel(*logLevel)
	}

	var err = asciichat.ServerMain(asciichat.ServerOptions{
		Listen:      *listen,
		ConfigPath:  *configFile,
		TestPattern: *testPattern,
		Renderer:    *renderer,
		Compression: *compression,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ascii-chat-server: %v\n", err)
		os.Exit(1)
	}
}
