package domain

// ProcessingStatus represents the processing state of a document
type ProcessingStatus string

const (
	StatusPending     ProcessingStatus = "pending"
	StatusRecognizing ProcessingStatus = "recognizing"
	StatusTranslating ProcessingStatus = "translating"
	StatusCompleted   ProcessingStatus = "completed"
	StatusFailed      ProcessingStatus = "failed"
)

var statusTransitions = map[ProcessingStatus][]ProcessingStatus{
	StatusPending:     {StatusRecognizing},
	StatusRecognizing: {StatusTranslating, StatusFailed},
	StatusTranslating: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether the state machine allows moving from s to next
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is a known status
func (s ProcessingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRecognizing, StatusTranslating, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// DisplayText returns a human readable status
func (s ProcessingStatus) DisplayText() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRecognizing:
		return "Recognizing text..."
	case StatusTranslating:
		return "Translating..."
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	}
	return string(s)
}
