package study

import (
	"fmt"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/storage"
	"github.com/refreshapp/refresh/tool"
)

// maxPresentedBlobSize is the exclusive size cutoff for listings: blobs at
// or above this many bytes are hidden from the user.
const maxPresentedBlobSize = 7_000_000

// NewListBucketsTool enumerates the buckets visible to the activity agent.
func NewListBucketsTool(store storage.ObjectStore, cfg Config) tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prefix": map[string]any{
				"type":        "string",
				"description": "Only list buckets whose names start with this prefix",
			},
		},
	}
	return tool.NewFunctionTool(
		"list_buckets",
		"List the available storage buckets.",
		params,
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			prefix, _ := args["prefix"].(string)

			buckets, err := store.ListBuckets(toolCtx.Context(), prefix, cfg.ListLimit)
			if err != nil {
				return storageError(err), nil
			}

			return map[string]any{
				"status":  "success",
				"buckets": buckets,
				"count":   len(buckets),
				"message": fmt.Sprintf("Found %d buckets.", len(buckets)),
			}, nil
		},
	)
}

// NewListBlobsTool lists the documents in a bucket. Results are filtered to
// blobs under maxPresentedBlobSize before presentation.
func NewListBlobsTool(store storage.ObjectStore, cfg Config) tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"bucket_name": map[string]any{
				"type":        "string",
				"description": "Bucket to list; defaults to the configured study bucket",
			},
		},
	}
	return tool.NewFunctionTool(
		"list_blobs_in_bucket",
		"List the document files available in a storage bucket.",
		params,
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			bucket, _ := args["bucket_name"].(string)
			if bucket == "" {
				bucket = toolCtx.GetStateString(StateBucketName)
			}
			if bucket == "" {
				bucket = cfg.BucketName
			}

			objects, err := store.ListObjects(toolCtx.Context(), bucket, "", cfg.ListLimit)
			if err != nil {
				return storageError(err), nil
			}

			blobs := make([]map[string]any, 0, len(objects))
			for _, obj := range objects {
				if obj.Size >= maxPresentedBlobSize {
					continue
				}
				blobs = append(blobs, map[string]any{
					"name":         obj.Name,
					"size_bytes":   obj.Size,
					"content_type": obj.ContentType,
				})
			}

			return map[string]any{
				"status":  "success",
				"bucket":  bucket,
				"blobs":   blobs,
				"count":   len(blobs),
				"message": fmt.Sprintf("Found %d files in bucket %s.", len(blobs), bucket),
			}, nil
		},
	)
}

func storageError(err error) map[string]any {
	return map[string]any{
		"status":        "error",
		"error_message": err.Error(),
		"message":       "The storage service could not complete the request.",
	}
}
