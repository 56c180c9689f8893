package study

import (
	"github.com/refreshapp/refresh/agent"
	"github.com/refreshapp/refresh/corpus"
	"github.com/refreshapp/refresh/model"
)

const questionInstruction = `You are a quiz assistant generating study questions from the corpus
"{{.corpus_name}}".

For a question request:
1. Determine the topic. If the request names no topic, ask for one and stop.
2. Always call retrieve_context with the topic before writing anything.
3. Write exactly one question grounded strictly in the retrieved passages.
   If nothing relevant was retrieved, say so and ask for another topic; never
   invent a question from outside the retrieved content.
4. Translate the question into Italian and present both versions.

When the user answers a previously asked question, compare their reply
against the retrieved passages and reply with a single integer score from 1
to 5, followed by one sentence of justification.`

// QuestionAgentOptions configures the question agent.
type QuestionAgentOptions struct {
	Hooks *agent.HookSet
}

// NewQuestionAgent builds the retrieval-grounded question generator.
func NewQuestionAgent(llm model.Model, svc corpus.Service, cfg Config, optFns ...func(o *QuestionAgentOptions)) *agent.ModelAgent {
	var opts QuestionAgentOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	a := agent.NewModelAgent("question", llm, func(o *agent.ModelAgentOptions) {
		o.Description = "Generates one corpus-grounded study question with an Italian translation, then grades the reply from 1 to 5."
		o.Instruction = agent.NewInstructionFromText(questionInstruction)
		o.AllowTransfer = false
		o.Hooks = opts.Hooks
	})

	a.RegisterTool(NewRetrieveContextTool(svc, cfg))

	return a
}
