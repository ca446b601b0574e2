// File: internal/services/retrieval/client.go
package retrieval

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/v4/pinecone"
	openai "github.com/sashabaranov/go-openai"
)

// VectorQuerier returns the nearest stored chunks for an embedding.
type VectorQuerier interface {
	Query(ctx context.Context, vector []float32, topK int) ([]*pinecone.ScoredVector, error)
}

// Embedder turns text into an embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PineconeQuerier queries a Pinecone index namespace.
type PineconeQuerier struct {
	index *pinecone.IndexConnection
}

func NewPineconeQuerier(config *Config) (*PineconeQuerier, error) {
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: config.APIKey})
	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("create pinecone client: %v", err))
	}
	index, err := pc.Index(pinecone.NewIndexConnParams{Host: config.IndexHost, Namespace: config.Namespace})
	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("connect pinecone index: %v", err))
	}
	return &PineconeQuerier{index: index}, nil
}

func (q *PineconeQuerier) Query(ctx context.Context, vector []float32, topK int) ([]*pinecone.ScoredVector, error) {
	resp, err := q.index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, &RetrievalError{Type: ErrTypeQuery, Operation: "query", Message: "pinecone query failed", Cause: err}
	}
	return resp.Matches, nil
}

// Close releases the index connection.
func (q *PineconeQuerier) Close() error {
	return q.index.Close()
}

// OpenAIEmbedder embeds text with the OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, &RetrievalError{Type: ErrTypeEmbedding, Operation: "embedding", Message: "failed to create embedding", Cause: err}
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &RetrievalError{Type: ErrTypeEmbedding, Operation: "embedding", Message: "empty embedding response"}
	}
	return resp.Data[0].Embedding, nil
}
