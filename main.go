package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"phishlens/ai"
	"phishlens/api"
	"phishlens/classifier"
	"phishlens/config"
	"phishlens/vetting"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	engine, err := buildEngine(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}

	gemini := ai.NewGeminiClient(cfg.Explain.APIKey, cfg.Explain.Model, cfg.Explain.Timeout)
	if gemini == nil {
		log.Println("[AI] GEMINI_API_KEY not set, explanations use built-in text")
	}

	router := api.NewRouter(api.NewHandler(engine, ai.NewExplainer(gemini)), cfg.Server.APIKey)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("✅ phishlens listening on :%s", cfg.Server.Port)
		log.Println("📍 Endpoints:")
		log.Println("   POST /post             - URL verdict (legacy status code)")
		log.Println("   POST /api/v1/classify  - URL verdict with features")
		log.Println("   POST /api/v1/explain   - URL verdict with explanation")
		log.Println("   GET  /ping             - Liveness")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// buildEngine loads every read-only dependency once. Any failure here stops
// the process.
func buildEngine(ctx context.Context, cfg *config.Config) (*vetting.Engine, error) {
	allowlist, err := vetting.LoadAllowlist(cfg.Allowlist.Path)
	if err != nil {
		return nil, err
	}

	model, err := loadClassifier(ctx, cfg.Classifier)
	if err != nil {
		return nil, err
	}

	ranks, err := loadRanks(cfg.Rank)
	if err != nil {
		return nil, err
	}

	return &vetting.Engine{
		Allowlist: allowlist,
		Metadata: &vetting.MetadataExtractor{
			Whois:         vetting.NewWhoisClient(cfg.Whois.Timeout, cfg.Whois.PerSecond, cfg.Whois.Burst),
			Ranks:         ranks,
			Timeout:       cfg.Whois.Timeout,
			RankThreshold: cfg.Rank.Threshold,
		},
		Content: vetting.NewContentExtractor(
			cfg.Content.Timeout,
			cfg.Content.MaxRedirects,
			cfg.Content.MaxBodyBytes,
			cfg.Content.UserAgent,
		),
		Classifier: model,
	}, nil
}

func loadClassifier(ctx context.Context, cfg config.ClassifierConfig) (vetting.Classifier, error) {
	switch cfg.Kind {
	case config.ClassifierRemote:
		return classifier.NewRemote(ctx, cfg.URL, cfg.Timeout)
	case config.ClassifierArtifact:
		return classifier.Load(cfg.Path, vetting.FeatureNames[:])
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", cfg.Kind)
	}
}

func loadRanks(cfg config.RankConfig) (vetting.RankSource, error) {
	switch cfg.Source {
	case config.RankTranco:
		return vetting.LoadTrancoRanks(cfg.TrancoFile, cfg.TopN)
	case config.RankPage:
		return vetting.NewPageRankSource(cfg.PageURL, cfg.Selector, cfg.Timeout), nil
	default:
		log.Println("[RANK] No rank source configured, Web_Traffic will always be risky")
		return vetting.NoRankSource{}, nil
	}
}
