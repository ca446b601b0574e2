// File: internal/services/retrieval/augmenter.go
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pinecone-io/go-pinecone/v4/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iyunix/go-chatreplay/internal/services/ai"
)

// AddonID is the addon that switches retrieval on for an invocation.
const AddonID = "retrieval"

// Chunk is one retrieved passage.
type Chunk struct {
	ID     string
	Source string
	Text   string
	Score  float32
}

// Augmenter implements ai.Augmenter on top of an embedder and a vector index.
type Augmenter struct {
	config   *Config
	embedder Embedder
	querier  VectorQuerier
	retry    *RetryService
	logger   Logger
}

func NewAugmenter(config *Config, embedder Embedder, querier VectorQuerier, logger Logger) *Augmenter {
	return &Augmenter{
		config:   config,
		embedder: embedder,
		querier:  querier,
		retry:    NewRetryService(config, logger),
		logger:   logger,
	}
}

var _ ai.Augmenter = (*Augmenter)(nil)

func (a *Augmenter) Augment(ctx context.Context, req ai.Request) (string, error) {
	question := strings.TrimSpace(req.LastUserContent())
	if question == "" {
		return "", nil
	}

	chunks, err := a.Retrieve(ctx, question)
	if err != nil {
		return "", err
	}
	return a.format(chunks), nil
}

// Retrieve embeds the question and returns the matching chunks best first.
func (a *Augmenter) Retrieve(ctx context.Context, question string) ([]Chunk, error) {
	var embedding []float32
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		embedding, err = a.embedder.Embed(ctx, question)
		return err
	})
	if err != nil {
		return nil, err
	}

	var matches []*pinecone.ScoredVector
	err = a.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		matches, err = a.querier.Query(ctx, embedding, a.config.TopK)
		return err
	})
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(matches))
	for _, m := range matches {
		if m == nil || m.Vector == nil {
			continue
		}
		c := Chunk{ID: m.Vector.Id, Score: m.Score}
		if m.Vector.Metadata != nil {
			c.Text = stringField(m.Vector.Metadata, "text")
			c.Source = stringField(m.Vector.Metadata, "source_file")
		}
		if c.Text == "" {
			continue
		}
		chunks = append(chunks, c)
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	a.logger.Info("retrieval context built", "matches", len(matches), "chunks", len(chunks))
	return chunks, nil
}

func (a *Augmenter) format(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Use the following retrieved context when it is relevant:\n")
	for i, c := range chunks {
		entry := fmt.Sprintf("[%d] %s\n", i+1, c.Text)
		if c.Source != "" {
			entry = fmt.Sprintf("[%d] (%s) %s\n", i+1, c.Source, c.Text)
		}
		if a.config.MaxChars > 0 && b.Len()+len(entry) > a.config.MaxChars {
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimRight(b.String(), "\n")
}

func stringField(s *structpb.Struct, key string) string {
	v, ok := s.GetFields()[key]
	if !ok || v == nil {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return fmt.Sprintf("%g", k.NumberValue)
	case *structpb.Value_BoolValue:
		return fmt.Sprintf("%t", k.BoolValue)
	default:
		return ""
	}
}
