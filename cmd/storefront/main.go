package main

import (
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"StoreFront/internal/catalog"
	"StoreFront/internal/images"
	"StoreFront/pkg/kit"
)

func main() {
	service := "storefront"
	log := kit.NewLogger(service)
	defer func() { _ = log.Sync() }()

	port := getenv("PORT", "8080")
	imgDir := getenv("IMG_DIR", "./static/img")
	imgPrefix := getenv("IMG_PUBLIC_PREFIX", "/img/")
	metricsEnabled := getenv("METRICS_ENABLED", "false") == "true"
	metricsToken := getenv("METRICS_TOKEN", "")
	mutationLimit := getenvInt("MUTATION_LIMIT_PER_MIN", 60, log)

	imgs, err := images.NewDiskStore(imgDir, imgPrefix, log)
	if err != nil {
		log.Fatal("image store init failed", zap.Error(err))
	}

	store := catalog.NewMemStore(catalog.DemoItems(), imgs, log)
	s := &catalog.Server{Store: store, Images: imgs, Log: log}

	h := catalog.NewHandler(s, catalog.HTTPDeps{
		Log:      log,
		Service:  service,
		Registry: prometheus.NewRegistry(),

		MetricsEnabled: metricsEnabled,
		MetricsToken:   metricsToken,

		MutationLimitPerMin: mutationLimit,

		StaticDir:    imgs.Dir(),
		StaticPrefix: imgs.PublicPrefix(),
	})

	if err := kit.RunHTTPServer(":"+port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int, log *zap.Logger) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("bad integer env var, using default",
			zap.String("key", k), zap.String("value", v), zap.Int("default", def))
		return def
	}
	return n
}
