package study

// Well-known session state keys. Values are strings; booleans use the
// "True"/"False" convention so they survive JSON round-trips and template
// rendering unchanged.
const (
	StateLoginStatus = "login_status"
	StateUsername    = "username"
	StateUserID      = "user_id"
	StateSessionID   = "session_id"
	StateBucketName  = "bucket_name"
	StateCorpusName  = "corpus_name"
	StateCorpusID    = "corpus_id"
)

// Config carries the deployment identifiers threaded into initial session
// state and the activity tools.
type Config struct {
	// BucketName is the default bucket for document listings and imports.
	BucketName string
	// CorpusName is the human-readable corpus label shown to the user.
	CorpusName string
	// CorpusID identifies the retrieval corpus for import and query calls.
	CorpusID string
	// ListLimit caps entries returned by listing tools. Zero means
	// unbounded.
	ListLimit int
}

// InitialState is the pre-login state snapshot every new session starts
// from. The zero user id "0" marks the pre-login phase.
func InitialState(cfg Config) map[string]any {
	return map[string]any{
		StateLoginStatus: "False",
		StateUsername:    "",
		StateUserID:      "0",
		StateSessionID:   "0",
		StateBucketName:  cfg.BucketName,
		StateCorpusName:  cfg.CorpusName,
		StateCorpusID:    cfg.CorpusID,
	}
}
