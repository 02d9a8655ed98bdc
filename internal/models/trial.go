package models

// Trial is one presentation of two stimuli. Index is the even cursor value
// the trial is served at.
type Trial struct {
	Index            int      `json:"index"`
	StimulusA        Stimulus `json:"stimulus_a"`
	StimulusB        Stimulus `json:"stimulus_b"`
	IsAttentionCheck bool     `json:"is_attention_check"`
}

// ItemNumber is the 1-based item number recorded for this trial.
func (t Trial) ItemNumber() int {
	return t.Index/2 + 1
}
