package study

import (
	"github.com/refreshapp/refresh/agent"
	"github.com/refreshapp/refresh/corpus"
	"github.com/refreshapp/refresh/model"
	"github.com/refreshapp/refresh/storage"
	"github.com/refreshapp/refresh/tool"
)

const activityInstruction = `You are the study activity assistant for RefreshApp. The user is logged
in. You offer exactly three activities:

1. List the files in the study bucket — call list_blobs_in_bucket and
   present the returned files.
2. Import a named file into the study corpus — call
   import_document_to_corpus with the filename the user gave.
3. Create a quiz question — call the question tool and relay its result.

If the user asks for anything outside these three activities, reply exactly:
"I can only help with listing files, importing a document, or creating a
question." Do not call any tool in that case.`

// ActivityAgentOptions configures the activity agent.
type ActivityAgentOptions struct {
	Hooks *agent.HookSet
}

// NewActivityAgent builds the post-login menu agent. The question agent is
// attached as a callable tool rather than a sub-agent so control returns
// here after each question exchange.
func NewActivityAgent(
	llm model.Model,
	store storage.ObjectStore,
	svc corpus.Service,
	questionAgent *agent.ModelAgent,
	cfg Config,
	optFns ...func(o *ActivityAgentOptions),
) *agent.ModelAgent {
	var opts ActivityAgentOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	a := agent.NewModelAgent("activity", llm, func(o *agent.ModelAgentOptions) {
		o.Description = "Offers file listing, document import, and quiz question creation."
		o.Instruction = agent.NewInstructionFromText(activityInstruction)
		o.AllowTransfer = false
		o.Hooks = opts.Hooks
	})

	a.RegisterTools(
		NewListBlobsTool(store, cfg),
		NewListBucketsTool(store, cfg),
		NewImportDocumentTool(svc, store, cfg),
		tool.NewAgentTool(questionAgent),
	)

	return a
}
