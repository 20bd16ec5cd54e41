package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getmockd/expectd/pkg/expectation"
)

// ErrNotHijackable is returned when the response writer cannot hand over
// its connection.
var ErrNotHijackable = errors.New("connection cannot be hijacked")

// InjectFault takes over the connection behind w, writes the fault's raw
// bytes and closes it. A hijacked connection never returns to the server,
// so it is closed whether or not DropConnection is set.
func InjectFault(w http.ResponseWriter, fault *expectation.HTTPError) error {
	conn, buf, err := http.NewResponseController(w).Hijack()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotHijackable, err)
	}
	if len(fault.ResponseBytes) > 0 {
		if _, err := buf.Write(fault.ResponseBytes); err != nil {
			_ = conn.Close()
			return fmt.Errorf("writing fault bytes: %w", err)
		}
		if err := buf.Flush(); err != nil {
			_ = conn.Close()
			return fmt.Errorf("writing fault bytes: %w", err)
		}
	}
	return conn.Close()
}
