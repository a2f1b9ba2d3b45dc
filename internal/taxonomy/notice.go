package taxonomy

import "fmt"

// Notice kinds.
const (
	KindError   = "error"
	KindUpdated = "updated"
)

// Notice is one admin message produced by a term operation.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Notices collects the messages of a request, in order.
type Notices []Notice

func (n *Notices) errorf(format string, args ...interface{}) {
	*n = append(*n, Notice{Kind: KindError, Message: fmt.Sprintf(format, args...)})
}

func (n *Notices) updatedf(format string, args ...interface{}) {
	*n = append(*n, Notice{Kind: KindUpdated, Message: fmt.Sprintf(format, args...)})
}

// OK reports whether no error notice was recorded.
func (n Notices) OK() bool {
	for _, x := range n {
		if x.Kind == KindError {
			return false
		}
	}
	return true
}

// Messages returns the text of every notice.
func (n Notices) Messages() []string {
	out := make([]string, len(n))
	for i, x := range n {
		out[i] = x.Message
	}
	return out
}
