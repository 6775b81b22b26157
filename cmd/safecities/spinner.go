package main

import (
	"fmt"
	"io"
	"time"
)

// spinner animates a status line while a query is in flight
type spinner struct {
	writer  io.Writer
	message string
	frames  []string
	stop    chan struct{}
	done    chan struct{}
}

func startSpinner(writer io.Writer, message string) *spinner {
	s := &spinner{
		writer:  writer,
		message: message,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *spinner) run() {
	defer close(s.done)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ticker.C:
			fmt.Fprintf(s.writer, "\r%s %s", s.frames[i%len(s.frames)], s.message)
		case <-s.stop:
			fmt.Fprint(s.writer, "\r\033[K")
			return
		}
	}
}

// Stop clears the line and waits for the animation to exit
func (s *spinner) Stop() {
	close(s.stop)
	<-s.done
}
