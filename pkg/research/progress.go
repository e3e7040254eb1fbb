package research

import "math"

// Progress is emitted after every query a run completes.
type Progress struct {
	Completed int    `json:"completedQueries"`
	Total     int    `json:"totalQueries"`
	Percent   int    `json:"percent"`
	Label     string `json:"label"`
}

// Observer receives progress of a run. OnProgress is called from the driver's
// goroutine and must return promptly.
type Observer interface {
	OnProgress(p Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Progress)

func (f ObserverFunc) OnProgress(p Progress) { f(p) }

type chanObserver chan<- Progress

// ChannelObserver delivers progress on ch, dropping events the receiver is
// not ready for.
func ChannelObserver(ch chan<- Progress) Observer {
	return chanObserver(ch)
}

func (c chanObserver) OnProgress(p Progress) {
	select {
	case c <- p:
	default:
	}
}

func percent(completed, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

func emit(obs Observer, p Progress) {
	if obs != nil {
		obs.OnProgress(p)
	}
}
