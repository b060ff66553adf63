package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Package logger.
 *
 * Description:	Everything in the core logs through one charmbracelet
 *		logger on stderr, so log lines never interleave with the
 *		rendered frames going to stdout.  The front-ends pick the
 *		level from flags/config.
 *
 *---------------------------------------------------------------*/

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "ascii-chat",
})

func LogSetLevel(level string) {
	var parsed, err = log.ParseLevel(level)
	if err != nil {
		logger.Warn("unknown log level, keeping default", "level", level)
		return
	}
	logger.SetLevel(parsed)
}

/* Redirects log output somewhere else entirely (a file, or discarded).
 * The tests use it to silence expected warnings. */

func LogSetOutput(w io.Writer) {
	logger.SetOutput(w)
}
