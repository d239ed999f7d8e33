package metrics

// Recorder receives session lifecycle and traffic counters.
type Recorder interface {
	SessionStarted()
	SessionFinished(status string)
	AudioSent(bytes int)
	EventReceived(kind string)
}

type Nop struct{}

func (Nop) SessionStarted()        {}
func (Nop) SessionFinished(string) {}
func (Nop) AudioSent(int)          {}
func (Nop) EventReceived(string)   {}
