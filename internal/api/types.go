// Package api is the client for the textbook question-answering backend.
package api

// Limits enforced before a request leaves the client
const (
	MaxQuestionLength    = 2000
	MaxContextLength     = 2000
	MaxDescriptionLength = 1000
)

// Citation references a textbook section backing an answer
type Citation struct {
	Section   string  `json:"section"`
	URL       string  `json:"url"`
	Score     float64 `json:"score"`
	ModuleID  string  `json:"module_id,omitempty"`
	ChapterID string  `json:"chapter_id,omitempty"`
}

// Exchange is one prior question/answer pair sent as conversation history
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QueryRequest is the body of POST /api/query
type QueryRequest struct {
	Question            string     `json:"question"`
	SessionID           string     `json:"session_id,omitempty"`
	Context             string     `json:"context,omitempty"`
	ConversationHistory []Exchange `json:"conversation_history,omitempty"`
}

// QueryResponse is the answer returned by the backend
type QueryResponse struct {
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	Confidence     float64    `json:"confidence,omitempty"`
	MessageID      string     `json:"message_id,omitempty"`
	ResponseTimeMS int64      `json:"response_time_ms,omitempty"`
}

// ContentStatus describes how much of the textbook is indexed
type ContentStatus struct {
	LastUpdated      string   `json:"last_updated"`
	ContentVersion   string   `json:"content_version"`
	IndexedModules   []string `json:"indexed_modules"`
	TotalChunks      int      `json:"total_chunks"`
	IndexingComplete bool     `json:"indexing_complete"`
}

// HealthStatus is the body of GET /health. Timestamp is kept verbatim; the
// backend sends it without a zone.
type HealthStatus struct {
	Status    string `json:"status"`
	Qdrant    string `json:"qdrant,omitempty"`
	Database  string `json:"database,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Rating is a thumbs-up or thumbs-down on an answer
type Rating string

const (
	RatingUp   Rating = "up"
	RatingDown Rating = "down"
)

// FeedbackRequest is the body of POST /api/feedback
type FeedbackRequest struct {
	MessageID string `json:"message_id"`
	Rating    Rating `json:"rating"`
}

// FeedbackResponse acknowledges a rating
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// IssueType classifies a reported answer
type IssueType string

const (
	IssueIncorrect  IssueType = "incorrect"
	IssueIncomplete IssueType = "incomplete"
	IssueHarmful    IssueType = "harmful"
	IssueOther      IssueType = "other"
)

// IssueTypes lists the accepted issue types
var IssueTypes = []IssueType{IssueIncorrect, IssueIncomplete, IssueHarmful, IssueOther}

// Valid reports whether t is a known issue type
func (t IssueType) Valid() bool {
	for _, known := range IssueTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ReportIssueRequest is the body of POST /api/report-issue
type ReportIssueRequest struct {
	MessageID   string    `json:"message_id"`
	IssueType   IssueType `json:"issue_type"`
	Description string    `json:"description,omitempty"`
}

// ReportIssueResponse acknowledges a report
type ReportIssueResponse struct {
	Success bool   `json:"success"`
	IssueID string `json:"issue_id"`
	Message string `json:"message"`
}
