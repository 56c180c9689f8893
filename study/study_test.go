package study

import (
	"testing"

	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/internal/testutil"
	"github.com/refreshapp/refresh/session"
)

var testConfig = Config{
	BucketName: "study-bucket",
	CorpusName: "biology-notes",
	CorpusID:   "corpus-bio",
	ListLimit:  50,
}

var studyTestKey = core.SessionKey{AppName: "RefreshApp", UserID: "0", SessionID: "s-study"}

func newStudyStore(t *testing.T) *session.InMemoryStore {
	t.Helper()
	return testutil.SeededStore(t, studyTestKey, InitialState(testConfig))
}

func studyToolContext(t *testing.T, store *session.InMemoryStore) *core.ToolContext {
	t.Helper()
	return testutil.ToolContext(t, store, studyTestKey, "activity")
}
