package transcript

// Exchange is one finished question and answer: the user turn, the frozen
// assistant turn that answered it, and what the stream looked like.
type Exchange struct {
	ConversationID string `json:"conversation_id"`
	TopK           int    `json:"top_k"`
	User           Turn   `json:"user"`
	Assistant      Turn   `json:"assistant"`

	// Applied and Malformed count the records the answer stream applied and
	// skipped as malformed.
	Applied   int `json:"applied"`
	Malformed int `json:"malformed"`
}
