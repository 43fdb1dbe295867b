package model

// ScoreRequest bundles a raw event with the sentiment observations captured
// for it. One request flows through the queue as one scoring task.
type ScoreRequest struct {
	Raw          RawEvent
	Observations []SentimentObservation
}
