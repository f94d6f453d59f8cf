package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCorpus(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.jsonl")
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestJSONLRetrieverMissingFileReturnsEmpty(t *testing.T) {
	r, err := NewJSONLRetriever("/no/such/corpus.jsonl")
	if err != nil {
		t.Fatalf("NewJSONLRetriever() error = %v", err)
	}
	docs, err := r.Search(context.Background(), "排放因子", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents from a missing corpus, got %d", len(docs))
	}
}

func TestJSONLRetrieverScoresByKeywordOverlap(t *testing.T) {
	path := writeCorpus(t, []string{
		`{"id":"1","content":"机动车排放因子与车型、污染物、季节相关","source":"标准A"}`,
		`{"id":"2","content":"完全不相关的内容","source":"标准B"}`,
	})
	r, err := NewJSONLRetriever(path)
	if err != nil {
		t.Fatalf("NewJSONLRetriever() error = %v", err)
	}
	docs, err := r.Search(context.Background(), "排放因子 车型", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(docs) == 0 {
		t.Fatalf("expected at least one matching document")
	}
	if docs[0].ID != "1" {
		t.Fatalf("expected doc 1 to rank first, got %s", docs[0].ID)
	}
}

func TestExecuteMissingQuery(t *testing.T) {
	r := &jsonlRetriever{}
	tool := New(r, nil, "{passages}\n{question}")
	result, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure for missing query")
	}
}

func TestExecuteNoResultsStillSucceeds(t *testing.T) {
	r := &jsonlRetriever{}
	tool := New(r, nil, "{passages}\n{question}")
	result, err := tool.Execute(context.Background(), map[string]any{"query": "随便问点什么"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success even with no matching documents")
	}
}

func TestExecuteWithResultsFallsBackToPassagesWithoutRefiner(t *testing.T) {
	path := writeCorpus(t, []string{
		`{"id":"1","content":"PM2.5 排放标准说明","source":"标准A"}`,
	})
	r, err := NewJSONLRetriever(path)
	if err != nil {
		t.Fatalf("NewJSONLRetriever() error = %v", err)
	}
	tool := New(r, nil, "{passages}\n{question}")
	result, err := tool.Execute(context.Background(), map[string]any{"query": "PM2.5 排放标准"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	sources, ok := result.Data["sources"].([]string)
	if !ok || len(sources) == 0 {
		t.Fatalf("expected deduplicated sources in data, got %v", result.Data["sources"])
	}
}
