// Package main starts the in-memory stub of the text analysis service,
// useful for developing the client without the real backend.
package main

import (
	"flag"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/avetrov/textsift/internal/logger"
	"github.com/avetrov/textsift/internal/stubserver"
)

func main() {
	addr := flag.String("a", "127.0.0.1:8000", "listen address (ip:port)")
	flag.Parse()

	if env := os.Getenv("TEXTSIFT_STUB_ADDR"); env != "" {
		*addr = env
	}

	log := logger.New()
	if err := log.Init("info"); err != nil {
		panic(err)
	}
	defer func() { _ = log.Log.Sync() }()

	router := stubserver.NewRouter(stubserver.NewStore(), log.Log)

	log.Log.Info("starting stub analysis service", zap.String("addr", *addr))
	if err := http.ListenAndServe(*addr, router); err != nil {
		log.Log.Fatal("server stopped", zap.Error(err))
	}
}
