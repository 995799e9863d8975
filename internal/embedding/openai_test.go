package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/corpuslabs/corpusd/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

// fakeEmbeddingsAPI records requests and answers each input with a vector
// derived from its batch position.
type fakeEmbeddingsAPI struct {
	requests []openai.EmbeddingRequest
	err      error
	// shortchange makes the fake return one embedding fewer than asked.
	shortchange bool
}

func (f *fakeEmbeddingsAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}

	req := conv.Convert()
	f.requests = append(f.requests, req)

	inputs := req.Input.([]string)
	n := len(inputs)
	if f.shortchange && n > 0 {
		n--
	}

	data := make([]openai.Embedding, n)
	for i := range data {
		data[i] = openai.Embedding{
			Index:     i,
			Embedding: []float32{float32(len(f.requests)), float32(i)},
		}
	}
	return openai.EmbeddingResponse{Data: data}, nil
}

func TestOpenAIProvider_BatchesRequests(t *testing.T) {
	api := &fakeEmbeddingsAPI{}
	p := newOpenAIProviderWithAPI(api, OpenAIConfig{Model: "text-embedding-3-small", BatchSize: 2})

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := p.EmbedDocuments(context.Background(), texts)

	assert.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Len(t, api.requests, 3)
	assert.Equal(t, []string{"a", "b"}, api.requests[0].Input)
	assert.Equal(t, []string{"c", "d"}, api.requests[1].Input)
	assert.Equal(t, []string{"e"}, api.requests[2].Input)

	// Order preserved across batches: batch number then position.
	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{1, 1}, vectors[1])
	assert.Equal(t, []float32{2, 0}, vectors[2])
	assert.Equal(t, []float32{3, 0}, vectors[4])
}

func TestOpenAIProvider_StripsNewlines(t *testing.T) {
	api := &fakeEmbeddingsAPI{}
	p := newOpenAIProviderWithAPI(api, OpenAIConfig{StripNewlines: true})

	_, err := p.EmbedDocuments(context.Background(), []string{"line one\nline two\n"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"line one line two "}, api.requests[0].Input)
}

func TestOpenAIProvider_ForwardsDimensionsOverride(t *testing.T) {
	api := &fakeEmbeddingsAPI{}
	p := newOpenAIProviderWithAPI(api, OpenAIConfig{Dimensions: 256})

	_, err := p.EmbedDocuments(context.Background(), []string{"a"})
	assert.NoError(t, err)
	assert.Equal(t, 256, api.requests[0].Dimensions)
}

func TestOpenAIProvider_EmbedQueryMatchesSingleDocument(t *testing.T) {
	ctx := context.Background()

	p := newOpenAIProviderWithAPI(&fakeEmbeddingsAPI{}, OpenAIConfig{})
	docVectors, err := p.EmbedDocuments(ctx, []string{"query text"})
	assert.NoError(t, err)

	p = newOpenAIProviderWithAPI(&fakeEmbeddingsAPI{}, OpenAIConfig{})
	queryVector, err := p.EmbedQuery(ctx, "query text")
	assert.NoError(t, err)

	assert.Equal(t, docVectors[0], queryVector)
}

func TestOpenAIProvider_ClassifiesTimeout(t *testing.T) {
	api := &fakeEmbeddingsAPI{err: context.DeadlineExceeded}
	p := newOpenAIProviderWithAPI(api, OpenAIConfig{})

	_, err := p.EmbedDocuments(context.Background(), []string{"a"})
	assert.Error(t, err)

	var domainErr *domain.DomainError
	assert.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeTimeout, domainErr.Code)
}

func TestOpenAIProvider_ClassifiesBackendError(t *testing.T) {
	api := &fakeEmbeddingsAPI{err: errors.New("rate limited")}
	p := newOpenAIProviderWithAPI(api, OpenAIConfig{})

	_, err := p.EmbedDocuments(context.Background(), []string{"a"})
	assert.Error(t, err)

	var domainErr *domain.DomainError
	assert.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeEmbedding, domainErr.Code)
}

func TestOpenAIProvider_RejectsCountMismatch(t *testing.T) {
	api := &fakeEmbeddingsAPI{shortchange: true}
	p := newOpenAIProviderWithAPI(api, OpenAIConfig{})

	_, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.Error(t, err)

	var domainErr *domain.DomainError
	assert.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeEmbedding, domainErr.Code)
}

func TestOpenAIProvider_ClampsBatchSize(t *testing.T) {
	p := newOpenAIProviderWithAPI(&fakeEmbeddingsAPI{}, OpenAIConfig{BatchSize: 100000})
	assert.Equal(t, MaxBatchSize, p.batchSize)

	p = newOpenAIProviderWithAPI(&fakeEmbeddingsAPI{}, OpenAIConfig{})
	assert.Equal(t, DefaultBatchSize, p.batchSize)
}
