// Package knowledge implements query_knowledge: retrieve relevant passages
// from a local document corpus, rerank them by keyword overlap, and ask
// the LLM to refine them into one coherent, citation-bearing answer.
//
// The original system backed retrieval with a FAISS dense index over a
// BGE-M3/DashScope embedding model — infrastructure this module's
// dependency corpus has no equivalent for. Retrieval here instead scores
// documents by keyword overlap against the query, the same fallback
// algorithm the original reranker used when no embedding-based rerank API
// was configured (skills/knowledge/reranker.py's _rerank_local).
package knowledge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Kirito123l/emission-agent/internal/llm"
	"github.com/Kirito123l/emission-agent/internal/tools"
	"github.com/Kirito123l/emission-agent/pkg/models"
)

const (
	toolName        = "query_knowledge"
	toolDescription = "Query emission-related knowledge, standards, and regulations from the knowledge base"

	defaultTopK = 5
)

// Document is one indexed knowledge-base passage.
type Document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// scoredDocument is a Document plus the keyword-overlap score it earned
// against one query.
type scoredDocument struct {
	Document
	Score float64
}

// Retriever finds candidate passages for a query. The jsonlRetriever below
// is the only implementation; the interface exists so a future embedding-
// backed retriever can be substituted without touching the tool.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]scoredDocument, error)
}

// jsonlRetriever loads its corpus once from a JSON-lines file (one
// {"id","content","source"} object per line) and scores every document by
// keyword overlap at query time — a corpus small enough that a full scan
// per query is the right trade, not an approximation of a missing vector
// index.
type jsonlRetriever struct {
	documents []Document
}

// NewJSONLRetriever loads a corpus file. A missing file yields an empty,
// always-zero-result retriever rather than an error, since a knowledge
// base is optional ambient data, not a required startup dependency.
func NewJSONLRetriever(path string) (*jsonlRetriever, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &jsonlRetriever{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &jsonlRetriever{documents: docs}, nil
}

func (r *jsonlRetriever) Search(ctx context.Context, query string, topK int) ([]scoredDocument, error) {
	keywords := extractKeywords(query)
	scored := make([]scoredDocument, 0, len(r.documents))
	for _, doc := range r.documents {
		score := keywordScore(doc.Content, keywords)
		if score <= 0 {
			continue
		}
		scored = append(scored, scoredDocument{Document: doc, Score: score})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
var stopwords = map[string]bool{
	"的": true, "了": true, "是": true, "在": true, "有": true,
	"和": true, "与": true, "或": true, "等": true, "及": true,
	"以": true, "为": true, "对": true, "从": true, "到": true,
}

func extractKeywords(text string) []string {
	cleaned := punctuation.ReplaceAllString(text, " ")
	var keywords []string
	for _, word := range strings.Fields(cleaned) {
		if len([]rune(word)) > 1 && !stopwords[word] {
			keywords = append(keywords, strings.ToLower(word))
		}
	}
	return keywords
}

func keywordScore(content string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	score := float64(matches) / float64(len(keywords))
	if score > 1.0 {
		score = 1.0
	}
	return score
}

type params struct {
	Query string `json:"query" jsonschema:"required,description=The question to search the knowledge base for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"description=Number of results to return, default 5"`
}

var schema = tools.GenerateSchema(params{})

// Tool implements tools.Tool.
type Tool struct {
	retriever Retriever
	refiner   llm.Client
	prompt    string // refiner prompt template, with {passages}/{question} placeholders
}

func New(retriever Retriever, refiner llm.Client, refinerPrompt string) *Tool {
	return &Tool{retriever: retriever, refiner: refiner, prompt: refinerPrompt}
}

func (t *Tool) Name() string            { return toolName }
func (t *Tool) Description() string     { return toolDescription }
func (t *Tool) Schema() json.RawMessage { return schema }

func (t *Tool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	var p params
	if err := tools.DecodeArgs(args, &p); err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if p.Query == "" {
		return &models.ToolResult{Success: false, Error: "missing required parameter: query"}, nil
	}
	topK := p.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	docs, err := t.retriever.Search(ctx, p.Query, topK)
	if err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("knowledge retrieval failed: %v", err)}, nil
	}
	if len(docs) == 0 {
		return &models.ToolResult{
			Success: true,
			Data:    map[string]any{"answer": "知识库中未找到相关内容。", "sources": []string{}},
			Summary: "知识库中未找到相关内容。",
		}, nil
	}

	passages := buildPassagesBlock(docs)
	answer, err := t.refine(ctx, p.Query, passages)
	if err != nil {
		// Retrieval succeeded even if refinement failed — fall back to the
		// raw passages rather than losing the result entirely.
		answer = passages
	}

	sources := dedupeSources(docs)
	if len(sources) > 0 {
		answer += "\n\n**参考文档:**\n" + strings.Join(sources, "\n")
	}

	return &models.ToolResult{
		Success: true,
		Data: map[string]any{
			"answer":      answer,
			"sources":     sources,
			"num_results": len(docs),
		},
		Summary: answer,
	}, nil
}

func (t *Tool) refine(ctx context.Context, question, passages string) (string, error) {
	if t.refiner == nil {
		return passages, nil
	}
	prompt := strings.NewReplacer("{passages}", passages, "{question}", question).Replace(t.prompt)
	resp, err := t.refiner.Chat(ctx, []models.ChatMessage{{Role: models.RoleUser, Content: prompt}}, "")
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func buildPassagesBlock(docs []scoredDocument) string {
	var b strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, doc.Content)
	}
	return b.String()
}

func dedupeSources(docs []scoredDocument) []string {
	seen := map[string]bool{}
	var sources []string
	for _, doc := range docs {
		if doc.Source == "" || seen[doc.Source] {
			continue
		}
		seen[doc.Source] = true
		sources = append(sources, "- "+doc.Source)
	}
	return sources
}
