package study

import (
	"fmt"

	"github.com/refreshapp/refresh/corpus"
	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/storage"
	"github.com/refreshapp/refresh/tool"
)

// NewImportDocumentTool ingests one bucket file into the retrieval corpus.
// The file is resolved through the object store so the import uses the
// store's own URI for the blob.
func NewImportDocumentTool(svc corpus.Service, store storage.ObjectStore, cfg Config) tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filename": map[string]any{
				"type":        "string",
				"description": "Name of the file in the study bucket to import",
			},
		},
		"required": []string{"filename"},
	}
	return tool.NewFunctionTool(
		"import_document_to_corpus",
		"Import a document from the study bucket into the retrieval corpus.",
		params,
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			filename, _ := args["filename"].(string)

			bucket := toolCtx.GetStateString(StateBucketName)
			if bucket == "" {
				bucket = cfg.BucketName
			}
			corpusID := toolCtx.GetStateString(StateCorpusID)
			if corpusID == "" {
				corpusID = cfg.CorpusID
			}

			objects, err := store.ListObjects(toolCtx.Context(), bucket, filename, 0)
			if err != nil {
				return corpusError(err), nil
			}
			var target *storage.Object
			for i := range objects {
				if objects[i].Name == filename {
					target = &objects[i]
					break
				}
			}
			if target == nil {
				return map[string]any{
					"status":        "error",
					"error_message": fmt.Sprintf("file %s not found in bucket %s", filename, bucket),
					"message":       fmt.Sprintf("There is no file named %s in bucket %s.", filename, bucket),
				}, nil
			}

			res, err := svc.Import(toolCtx.Context(), corpusID, target.URI)
			if err != nil {
				return corpusError(err), nil
			}

			return map[string]any{
				"status":    "success",
				"corpus_id": res.CorpusID,
				"chunks":    res.Chunks,
				"message":   fmt.Sprintf("Imported %s into corpus %s.", filename, res.CorpusID),
			}, nil
		},
	)
}

// NewRetrieveContextTool queries the corpus for passages relevant to a
// topic. The question agent must call this before writing a question.
func NewRetrieveContextTool(svc corpus.Service, cfg Config) tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Topic or question text to retrieve passages for",
			},
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Maximum number of passages to return (default 5)",
			},
		},
		"required": []string{"query"},
	}
	return tool.NewFunctionTool(
		"retrieve_context",
		"Retrieve corpus passages relevant to a topic.",
		params,
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			topK := 5
			if v, ok := args["top_k"].(float64); ok && v > 0 {
				topK = int(v)
			}

			corpusID := toolCtx.GetStateString(StateCorpusID)
			if corpusID == "" {
				corpusID = cfg.CorpusID
			}

			passages, err := svc.Query(toolCtx.Context(), corpusID, query, topK)
			if err != nil {
				return corpusError(err), nil
			}

			out := make([]map[string]any, 0, len(passages))
			for _, p := range passages {
				out = append(out, map[string]any{
					"id":      p.ID,
					"content": p.Content,
					"score":   p.Score,
					"source":  p.Source,
				})
			}

			return map[string]any{
				"status":   "success",
				"passages": out,
				"count":    len(out),
				"message":  fmt.Sprintf("Retrieved %d passages.", len(out)),
			}, nil
		},
	)
}

func corpusError(err error) map[string]any {
	return map[string]any{
		"status":        "error",
		"error_message": err.Error(),
		"message":       "The corpus service could not complete the request.",
	}
}
