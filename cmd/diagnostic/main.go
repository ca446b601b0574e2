// File: cmd/diagnostic/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/iyunix/go-chatreplay/internal/config"
	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/registry"
	"github.com/iyunix/go-chatreplay/internal/services"
	"github.com/iyunix/go-chatreplay/internal/services/ai"
	"github.com/iyunix/go-chatreplay/internal/services/retrieval"
)

// Checks the configured model backend and, when configured, the retrieval index.
func main() {
	question := flag.String("q", "What is the answer to life, universe and everything?", "question sent to the model")
	model := flag.String("model", "", "model id (defaults to DEFAULT_MODEL)")
	runs := flag.Int("runs", 5, "retrieval queries to time")
	flag.Parse()

	cfg := config.Load()
	if cfg.LLMAPIKey == "" {
		log.Fatal("FATAL: LLM_API_KEY not set in environment")
	}
	if *model == "" {
		*model = cfg.DefaultModel
	}
	logger := services.NewSlogLogger(nil, "diagnostic")

	provider, err := ai.NewOpenAIProvider(&ai.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Timeout: cfg.LLMTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize model provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reg := registry.New(logger)
	if n, err := reg.Sync(ctx, provider.Client()); err != nil {
		log.Printf("WARN: listing backend models failed: %v", err)
	} else {
		log.Printf("[INFO] backend serves %d models", n)
	}

	log.Printf("[INFO] streaming %q from %s", *question, *model)
	start := time.Now()
	var first time.Duration
	var answer strings.Builder
	err = provider.Stream(ctx, ai.Request{
		Model:       *model,
		Temperature: domain.DefaultTemperature,
		History:     []domain.Message{domain.NewUserMessage(*question)},
	}, func(delta string) error {
		if first == 0 {
			first = time.Since(start)
		}
		answer.WriteString(delta)
		return nil
	})
	if err != nil {
		log.Fatalf("FATAL: stream failed: %v", err)
	}
	log.Printf("[TIMING] first delta after %s, complete after %s", first, time.Since(start))
	log.Printf("[RESULT] %s", answer.String())

	if !cfg.RetrievalEnabled() {
		log.Println("[INFO] PINECONE_API_KEY/PINECONE_INDEX_HOST not set; skipping retrieval check")
		return
	}

	rc := retrieval.DefaultConfig()
	rc.APIKey = cfg.PineconeAPIKey
	rc.IndexHost = cfg.PineconeIndexHost
	rc.Namespace = cfg.PineconeNamespace
	rc.EmbeddingModel = cfg.EmbeddingModel
	rc.TopK = cfg.RetrievalTopK
	if err := rc.Validate(); err != nil {
		log.Fatalf("FATAL: retrieval config: %v", err)
	}
	querier, err := retrieval.NewPineconeQuerier(rc)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize Pinecone: %v", err)
	}
	defer querier.Close()
	aug := retrieval.NewAugmenter(rc, retrieval.NewOpenAIEmbedder(provider.Client(), rc.EmbeddingModel), querier, logger)

	var total time.Duration
	ok := 0
	for i := 1; i <= *runs; i++ {
		start := time.Now()
		chunks, err := aug.Retrieve(ctx, *question)
		if err != nil {
			log.Printf("ERROR: retrieval run #%d failed: %v", i, err)
			continue
		}
		d := time.Since(start)
		total += d
		ok++
		log.Printf("[TIMING] retrieval run #%d took %s (%d chunks)", i, d, len(chunks))
	}
	if ok == 0 {
		os.Exit(1)
	}
	log.Printf("[SUMMARY] average retrieval latency over %d runs: %s", ok, total/time.Duration(ok))
}
