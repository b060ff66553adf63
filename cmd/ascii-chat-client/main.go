package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Command-line front-end for the ascii-chat client.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	asciichat "github.com/zfogg/ascii-chat/src"
)

func main() {
	var configFile = pflag.StringP("config-file", "c", "", "Configuration file name (default ~/.ascii-chat/config.yml).")
	var forget = pflag.String("forget", "", "Remove host:port from known_hosts and exit.")
	var noAudio = pflag.BoolP("no-audio", "A", false, "Disable microphone and speaker.")
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

	var connect string
	if pflag.NArg() > 0 {
		connect = pflag.Arg(0)
	}

	var err = asciichat.ClientMain(asciichat.ClientOptions{
		Connect:    connect,
		ConfigPath: *configFile,
		Forget:     *forget,
		NoAudio:    *noAudio,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ascii-chat-client: %v\n", err)
		os.Exit(1)
	}
}
