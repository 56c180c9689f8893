package corpus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

const (
	defaultChunkSize    = 1024
	defaultChunkOverlap = 200
)

type chunk struct {
	id      string
	content string
	source  string
	terms   map[string]int
}

// MemoryServiceOptions configures a MemoryService.
type MemoryServiceOptions struct {
	// ChunkSize is the maximum chunk length in bytes.
	ChunkSize int
	// ChunkOverlap is how many bytes consecutive chunks share.
	ChunkOverlap int
}

// MemoryService is a process-local Service. Imported documents are split
// into overlapping chunks; Query scores chunks by the fraction of query
// terms they contain. Linear scan, suitable for tests and local mode; swap
// for a vector index for production retrieval.
//
// Concurrency: protected by RWMutex.
type MemoryService struct {
	loader       Loader
	chunkSize    int
	chunkOverlap int

	mu      sync.RWMutex
	corpora map[string][]chunk // corpusID -> indexed chunks
}

var _ Service = (*MemoryService)(nil)

// NewMemoryService creates a MemoryService reading documents through loader.
func NewMemoryService(loader Loader, optFns ...func(o *MemoryServiceOptions)) *MemoryService {
	opts := MemoryServiceOptions{
		ChunkSize:    defaultChunkSize,
		ChunkOverlap: defaultChunkOverlap,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = defaultChunkOverlap
	}

	return &MemoryService{
		loader:       loader,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		corpora:      make(map[string][]chunk),
	}
}

// Import loads, chunks, and indexes one document. Re-importing the same uri
// appends new chunks; deduplication is the caller's concern.
func (s *MemoryService) Import(ctx context.Context, corpusID, uri string) (ImportResult, error) {
	data, err := s.loader(ctx, uri)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to load document %s: %w", uri, err)
	}

	text := string(data)
	chunks := splitChunks(text, s.chunkSize, s.chunkOverlap)

	s.mu.Lock()
	defer s.mu.Unlock()
	base := len(s.corpora[corpusID])
	for i, content := range chunks {
		s.corpora[corpusID] = append(s.corpora[corpusID], chunk{
			id:      fmt.Sprintf("%s#%d", uri, base+i),
			content: content,
			source:  uri,
			terms:   termCounts(content),
		})
	}

	return ImportResult{CorpusID: corpusID, URI: uri, Chunks: len(chunks)}, nil
}

// Query ranks chunks by the fraction of query terms present. Zero-score
// chunks are dropped; ties break on chunk id for determinism.
func (s *MemoryService) Query(_ context.Context, corpusID, text string, topK int) ([]Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, exists := s.corpora[corpusID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCorpusNotFound, corpusID)
	}

	query := tokenize(text)
	if len(query) == 0 {
		return []Passage{}, nil
	}

	passages := make([]Passage, 0, len(chunks))
	for _, c := range chunks {
		matched := 0
		for _, term := range query {
			if c.terms[term] > 0 {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		passages = append(passages, Passage{
			ID:      c.id,
			Content: c.content,
			Score:   float64(matched) / float64(len(query)),
			Source:  c.source,
		})
	}

	sort.Slice(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		return passages[i].ID < passages[j].ID
	})
	if topK > 0 && len(passages) > topK {
		passages = passages[:topK]
	}
	return passages, nil
}

// splitChunks cuts text into windows of at most size bytes where
// consecutive windows share overlap bytes.
func splitChunks(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	step := size - overlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, term := range tokenize(text) {
		counts[term]++
	}
	return counts
}
