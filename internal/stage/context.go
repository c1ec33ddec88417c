package stage

// Boundary is one content-defined segment of the input video, delimited by
// scene or topic changes rather than fixed time slices. All stages after
// segmentation produce one output unit per boundary.
type Boundary struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Label string  `json:"label,omitempty"`
}

// SpeakerTurn is one diarized span attributed to a speaker.
type SpeakerTurn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// TranscriptSegment is one transcribed utterance, aligned to a speaker turn
// when diarization identified one.
type TranscriptSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

// Keyframe is one representative frame extracted for a boundary.
type Keyframe struct {
	BoundaryIndex int     `json:"boundary_index"`
	Timestamp     float64 `json:"timestamp"`
	ImageKey      string  `json:"image_key"`
}

// Summary is the structured summary produced for one boundary.
type Summary struct {
	BoundaryIndex int      `json:"boundary_index"`
	Title         string   `json:"title"`
	Text          string   `json:"text"`
	Topics        []string `json:"topics,omitempty"`
}

// Context is the accumulated pipeline state threaded through the stages in
// order. Each stage reads the outputs of its predecessors and appends its
// own; nothing is ever removed or substituted downstream.
type Context struct {
	JobID     string            `json:"job_id"`
	SourceKey string            `json:"source_key"`
	Duration  float64           `json:"duration,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	SpeakerTurns []SpeakerTurn       `json:"speaker_turns,omitempty"`
	Transcript   []TranscriptSegment `json:"transcript,omitempty"`
	Boundaries   []Boundary          `json:"boundaries,omitempty"`
	Keyframes    []Keyframe          `json:"keyframes,omitempty"`
	Summaries    []Summary           `json:"summaries,omitempty"`
}

// NewContext builds the initial pipeline context for a job.
func NewContext(jobID, sourceKey string) *Context {
	return &Context{JobID: jobID, SourceKey: sourceKey}
}

// Clone returns a deep-enough copy of the context for snapshotting between
// stages: slices are copied so a later stage's appends never alias an
// earlier snapshot.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	clone := *c
	clone.SpeakerTurns = append([]SpeakerTurn(nil), c.SpeakerTurns...)
	clone.Transcript = append([]TranscriptSegment(nil), c.Transcript...)
	clone.Boundaries = append([]Boundary(nil), c.Boundaries...)
	clone.Keyframes = append([]Keyframe(nil), c.Keyframes...)
	clone.Summaries = append([]Summary(nil), c.Summaries...)
	if c.Metadata != nil {
		clone.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
