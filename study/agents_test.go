package study

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/corpus"
	"github.com/refreshapp/refresh/model"
	"github.com/refreshapp/refresh/runner"
	"github.com/refreshapp/refresh/storage"
	"github.com/refreshapp/refresh/tool"
)

func TestLoginAgent_ScriptedProtocol(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueToolCall("get_active_user", `{}`)
	llm.EnqueueToolCall("update_username", `{"username":"ada"}`)
	llm.EnqueueToolCall("update_login", `{"student_id":"42","session_guid":"abc"}`)
	llm.EnqueueResponse(model.Response{
		Content:      *core.NewTextContent("assistant", "You are logged in to session abc."),
		FinishReason: "stop",
	})

	store := newStudyStore(t)
	login := NewLoginAgent(llm, nil)
	r := runner.New(login, func(o *runner.Options) { o.SessionStore = store })

	events, err := r.RunSync(context.Background(), studyTestKey, *core.NewTextContent("user", "hi"))
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "You are logged in to session abc.", events[len(events)-1].Text())

	// the tool deltas are folded into session state
	sess, err := store.Get(context.Background(), studyTestKey)
	require.NoError(t, err)
	assert.Equal(t, "ada", sess.GetStateString(StateUsername))
	assert.Equal(t, "42", sess.GetStateString(StateUserID))
	assert.Equal(t, "abc", sess.GetStateString(StateSessionID))
	assert.Equal(t, "True", sess.GetStateString(StateLoginStatus))

	// one model request per protocol step
	assert.Len(t, llm.Requests(), 4)

	// username was written before any further lookup could run
	var toolOrder []string
	for _, ev := range sess.GetEvents() {
		for _, fr := range ev.GetFunctionResponses() {
			toolOrder = append(toolOrder, fr.Name)
		}
	}
	assert.Equal(t, []string{"get_active_user", "update_username", "update_login"}, toolOrder)
}

func TestLoginAgent_RegistersRemoteTools(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	remote := tool.NewFunctionTool("get-student", "Look up a student.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return map[string]any{"status": "success"}, nil
		})

	login := NewLoginAgent(llm, []tool.Tool{remote})
	assert.True(t, login.HasTool("get_active_user"))
	assert.True(t, login.HasTool("update_username"))
	assert.True(t, login.HasTool("update_login"))
	assert.True(t, login.HasTool("get-student"))
}

func TestActivityAgent_RefusalMakesNoToolCall(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	refusal := "I can only help with listing files, importing a document, or creating a question."
	llm.AddResponse("what's the weather like?", refusal)

	objects := storage.NewMemoryStore()
	objects.CreateBucket(testConfig.BucketName)
	svc := corpus.NewMemoryService(corpus.NewObjectStoreLoader(objects))
	question := NewQuestionAgent(model.NewMockModel("mock-q", "mock"), svc, testConfig)

	store := newStudyStore(t)
	activity := NewActivityAgent(llm, objects, svc, question, testConfig)
	r := runner.New(activity, func(o *runner.Options) { o.SessionStore = store })

	events, err := r.RunSync(context.Background(), studyTestKey, *core.NewTextContent("user", "what's the weather like?"))
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, refusal, events[len(events)-1].Text())

	// exactly one model turn, no function calls recorded
	assert.Len(t, llm.Requests(), 1)
	sess, err := store.Get(context.Background(), studyTestKey)
	require.NoError(t, err)
	for _, ev := range sess.GetEvents() {
		assert.Empty(t, ev.GetFunctionCalls())
	}
}

func TestActivityAgent_ToolMenu(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	objects := storage.NewMemoryStore()
	svc := corpus.NewMemoryService(corpus.NewObjectStoreLoader(objects))
	question := NewQuestionAgent(model.NewMockModel("mock-q", "mock"), svc, testConfig)

	activity := NewActivityAgent(llm, objects, svc, question, testConfig)
	assert.True(t, activity.HasTool("list_blobs_in_bucket"))
	assert.True(t, activity.HasTool("list_buckets"))
	assert.True(t, activity.HasTool("import_document_to_corpus"))
	assert.True(t, activity.HasTool("question"))
}

func TestQuestionAgent_RetrievesBeforeAsking(t *testing.T) {
	objects := storage.NewMemoryStore()
	objects.PutObject(testConfig.BucketName, "cells.txt", "text/plain",
		[]byte("Mitochondria produce energy for the cell."))
	svc := corpus.NewMemoryService(corpus.NewObjectStoreLoader(objects))
	_, err := svc.Import(context.Background(), testConfig.CorpusID, "mem://study-bucket/cells.txt")
	require.NoError(t, err)

	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueToolCall("retrieve_context", `{"query":"mitochondria"}`)
	llm.EnqueueResponse(model.Response{
		Content: *core.NewTextContent("assistant",
			"What do mitochondria produce? / Cosa producono i mitocondri?"),
		FinishReason: "stop",
	})

	store := newStudyStore(t)
	question := NewQuestionAgent(llm, svc, testConfig)
	r := runner.New(question, func(o *runner.Options) { o.SessionStore = store })

	events, err := r.RunSync(context.Background(), studyTestKey, *core.NewTextContent("user", "quiz me on mitochondria"))
	require.NoError(t, err)
	require.NotEmpty(t, events)

	// retrieval happened and its response precedes the question
	sess, err := store.Get(context.Background(), studyTestKey)
	require.NoError(t, err)

	var sawRetrieval bool
	for _, ev := range sess.GetEvents() {
		for _, fr := range ev.GetFunctionResponses() {
			if fr.Name == "retrieve_context" {
				sawRetrieval = true
				m, ok := fr.Response.(map[string]any)
				require.True(t, ok)
				assert.Equal(t, "success", m["status"])
				assert.Equal(t, 1, m["count"])
			}
		}
		if ev.IsFinalResponse() {
			assert.True(t, sawRetrieval, "final question emitted before retrieval")
		}
	}
	assert.True(t, sawRetrieval)
}
