package backend

import "time"

// HistoryMessage is a single prior conversation turn included in AI-response
// and feedback requests. Sender uses the wire values "user", "ai" and "system".
type HistoryMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// TranscribeResult is the response of the transcription endpoint.
type TranscribeResult struct {
	// Transcription is the recognised text. The backend returns a fixed
	// fallback sentence when nothing intelligible was heard; see
	// [IsFallbackTranscription].
	Transcription string `json:"transcription"`

	// Romanized is the romanised rendering for script languages. Empty when
	// the language uses Latin script or romanisation is unavailable.
	Romanized string `json:"romanized_text,omitempty"`
}

// AIResponseRequest carries one user turn plus the preferences the backend
// needs to shape the tutor's reply.
type AIResponseRequest struct {
	Transcription    string           `json:"transcription"`
	ChatHistory      []HistoryMessage `json:"chat_history"`
	Language         string           `json:"language"`
	UserLevel        string           `json:"user_level,omitempty"`
	UserTopics       []string         `json:"user_topics,omitempty"`
	UserGoals        []string         `json:"user_goals,omitempty"`
	Formality        string           `json:"formality,omitempty"`
	FeedbackLanguage string           `json:"feedback_language,omitempty"`
}

// aiResponseResult tolerates the three field names the backend has used for
// the reply text across API revisions.
type aiResponseResult struct {
	Response   string `json:"response"`
	AIResponse string `json:"ai_response"`
	Message    string `json:"message"`
}

// Text returns the reply regardless of which field the backend populated.
func (r aiResponseResult) Text() string {
	switch {
	case r.Response != "":
		return r.Response
	case r.AIResponse != "":
		return r.AIResponse
	default:
		return r.Message
	}
}

// ShortFeedbackRequest asks for a one-line correction of what was just said.
type ShortFeedbackRequest struct {
	Transcription    string `json:"transcription"`
	Language         string `json:"language"`
	FeedbackLanguage string `json:"feedback_language,omitempty"`
}

// TranslateRequest asks for a translation of text into the target language.
type TranslateRequest struct {
	Text   string `json:"text"`
	Source string `json:"source_language,omitempty"`
	Target string `json:"target_language"`
}

// TranslateResult is the response of the translate endpoint.
type TranslateResult struct {
	Translation  string `json:"translation"`
	Breakdown    string `json:"breakdown,omitempty"`
	HasBreakdown bool   `json:"has_breakdown,omitempty"`
}

// BreakdownRequest asks for a detailed word-by-word breakdown of a sentence.
type BreakdownRequest struct {
	Text             string `json:"text"`
	Language         string `json:"language"`
	FeedbackLanguage string `json:"feedback_language,omitempty"`
}

// BreakdownResult is the response of the detailed-breakdown endpoint.
type BreakdownResult struct {
	Breakdown string `json:"breakdown"`
}

// Suggestion is one reply the learner could say next.
type Suggestion struct {
	Text      string `json:"text"`
	Romanized string `json:"romanized_text,omitempty"`
	Translation string `json:"translation,omitempty"`
}

// SuggestionsRequest asks for possible next replies given the conversation.
type SuggestionsRequest struct {
	ChatHistory []HistoryMessage `json:"chat_history"`
	Language    string           `json:"language"`
	UserLevel   string           `json:"user_level,omitempty"`
}

// SuggestionsResult is the response of the suggestions endpoint.
type SuggestionsResult struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// ExplainSuggestionRequest asks why a suggested reply fits the conversation.
type ExplainSuggestionRequest struct {
	Suggestion       string `json:"suggestion"`
	Language         string `json:"language"`
	FeedbackLanguage string `json:"feedback_language,omitempty"`
}

// ExplainSuggestionResult is the response of the explain-suggestion endpoint.
type ExplainSuggestionResult struct {
	Explanation string `json:"explanation"`
}

// GoalDelta is the backend-reported progress increment for one learning goal,
// part of the conversation summary.
type GoalDelta struct {
	GoalID string `json:"goal_id"`
	Delta  int    `json:"progress_delta"`
}

// SummaryRequest asks for an end-of-conversation summary and goal progress.
type SummaryRequest struct {
	ChatHistory []HistoryMessage `json:"chat_history"`
	Language    string           `json:"language"`
	UserGoals   []string         `json:"user_goals,omitempty"`
}

// SummaryResult is the response of the conversation-summary endpoint.
type SummaryResult struct {
	Title        string      `json:"title,omitempty"`
	Summary      string      `json:"summary"`
	GoalProgress []GoalDelta `json:"goal_progress,omitempty"`
}

// TTSRequest asks the backend to synthesise speech and store the audio.
type TTSRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// TTSResult is the response of the tts endpoint. The URL may lag the actual
// availability of the stored audio; callers should probe before playback.
type TTSResult struct {
	TTSURL string `json:"ttsUrl"`
}

// Conversation is a persisted conversation as returned by the CRUD endpoints.
type Conversation struct {
	ID        string                `json:"id"`
	Title     string                `json:"title,omitempty"`
	Language  string                `json:"language"`
	CreatedAt time.Time             `json:"created_at"`
	Messages  []ConversationMessage `json:"messages,omitempty"`
}

// ConversationMessage is a persisted message within a [Conversation].
type ConversationMessage struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Romanized string    `json:"romanized_text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateConversationRequest starts a persisted conversation.
type CreateConversationRequest struct {
	Language  string   `json:"language"`
	Formality string   `json:"formality,omitempty"`
	Topics    []string `json:"topics,omitempty"`
}
