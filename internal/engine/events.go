package engine

// Events is everything the engine reports to whatever front end is attached.
// Implementations must be safe for concurrent use; Log and FileProgress are
// called from download workers.
type Events interface {
	Log(text string)
	OverallProgress(completed int)
	TotalTasks(count int)
	FileProgress(percent int)
}

// EventFuncs adapts plain callbacks to Events. Nil callbacks are skipped.
type EventFuncs struct {
	OnLog             func(text string)
	OnOverallProgress func(completed int)
	OnTotalTasks      func(count int)
	OnFileProgress    func(percent int)
}

func (f EventFuncs) Log(text string) {
	if f.OnLog != nil {
		f.OnLog(text)
	}
}

func (f EventFuncs) OverallProgress(completed int) {
	if f.OnOverallProgress != nil {
		f.OnOverallProgress(completed)
	}
}

func (f EventFuncs) TotalTasks(count int) {
	if f.OnTotalTasks != nil {
		f.OnTotalTasks(count)
	}
}

func (f EventFuncs) FileProgress(percent int) {
	if f.OnFileProgress != nil {
		f.OnFileProgress(percent)
	}
}

// NopEvents discards everything.
type NopEvents struct{}

func (NopEvents) Log(string)          {}
func (NopEvents) OverallProgress(int) {}
func (NopEvents) TotalTasks(int)      {}
func (NopEvents) FileProgress(int)    {}

type EventKind int

const (
	EventLog EventKind = iota
	EventOverallProgress
	EventTotalTasks
	EventFileProgress
)

func (k EventKind) String() string {
	switch k {
	case EventLog:
		return "log"
	case EventOverallProgress:
		return "overall_progress"
	case EventTotalTasks:
		return "total_tasks"
	case EventFileProgress:
		return "file_progress"
	default:
		return "unknown"
	}
}

// Event is the structured form of a single callback.
type Event struct {
	Kind  EventKind
	Text  string
	Value int
}

// ChanEvents forwards every callback as an Event. Sends block, so the
// consumer must keep draining the channel for the engine to make progress.
type ChanEvents chan<- Event

func (c ChanEvents) Log(text string)               { c <- Event{Kind: EventLog, Text: text} }
func (c ChanEvents) OverallProgress(completed int) { c <- Event{Kind: EventOverallProgress, Value: completed} }
func (c ChanEvents) TotalTasks(count int)          { c <- Event{Kind: EventTotalTasks, Value: count} }
func (c ChanEvents) FileProgress(percent int)      { c <- Event{Kind: EventFileProgress, Value: percent} }

var (
	_ Events = EventFuncs{}
	_ Events = NopEvents{}
	_ Events = ChanEvents(nil)
)
