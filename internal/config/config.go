// Package config provides functionality for managing configuration options
// for the client using command-line flags, environment variables and an
// optional .env file.
package config

import (
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Options holds the configuration values for the client.
type Options struct {
	// ServerURL is the base URL of the analysis service.
	ServerURL string

	// SessionFile is the path of the persisted identity record.
	SessionFile string

	// TimeoutSeconds bounds every HTTP call issued by the client.
	// Uploads dominate, so the default is generous.
	TimeoutSeconds int
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.ServerURL, "url", "http://127.0.0.1:8000", "analysis service base URL")
	flag.StringVar(&options.SessionFile, "session", "session.json", "path to the persisted identity record")
	flag.IntVar(&options.TimeoutSeconds, "timeout", 60, "HTTP request timeout in seconds")
}

// Parse parses command-line flags, an optional .env file and environment
// variables to set configuration values. Environment variables win over
// flags, matching the precedence the service side uses.
func Parse() *Options {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		// A missing .env file is the normal case outside development.
		if !os.IsNotExist(err) {
			log.Printf("config: skipping .env: %v", err)
		}
	}

	if serverURL := os.Getenv("TEXTSIFT_SERVER_URL"); serverURL != "" {
		options.ServerURL = serverURL
	}
	if sessionFile := os.Getenv("TEXTSIFT_SESSION_FILE"); sessionFile != "" {
		options.SessionFile = sessionFile
	}
	if timeout := os.Getenv("TEXTSIFT_TIMEOUT_SECONDS"); timeout != "" {
		if v, err := strconv.Atoi(timeout); err == nil && v > 0 {
			options.TimeoutSeconds = v
		}
	}

	return options
}
