package cliconfig

// UsageError means the command line was incomplete. The CLI prints it to
// stdout and exits with status 1 before any socket is opened.
type UsageError struct {
	Program string
}

func (e *UsageError) Error() string {
	return "usage : " + e.Program + " port message"
}
